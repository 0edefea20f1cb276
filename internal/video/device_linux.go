//go:build linux

package video

import (
	"fmt"
	"image"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	mdvideo "github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/Avicted/callrelay/internal/media"
)

type deviceCamera struct {
	track  mediadevices.Track
	reader mdvideo.Reader
}

func (c *deviceCamera) Read() (image.Image, func(), error) {
	return c.reader.Read()
}

func (c *deviceCamera) Close() error {
	if err := c.track.Close(); err != nil {
		return fmt.Errorf("close camera track: %w", err)
	}
	return nil
}

func listCameras() []DeviceInfo {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceInfo{ID: d.DeviceID, Label: d.Label})
	}
	return out
}

// OpenDevice opens a V4L2 camera through pion/mediadevices.
func OpenDevice(facing media.Facing) (Camera, error) {
	dev, ok := SelectDevice(listCameras(), facing)
	if !ok {
		return nil, fmt.Errorf("no camera found: %w", media.ErrDeviceUnavailable)
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(dev.ID)
			c.Width = prop.IntRanged{Max: DefaultMaxWidth}
			c.Height = prop.IntRanged{Max: DefaultMaxHeight}
		},
	})
	if err != nil {
		return nil, classifyOpenError(err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("camera %q produced no video track: %w", dev.Label, media.ErrDeviceUnavailable)
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		for _, t := range tracks {
			t.Close()
		}
		return nil, fmt.Errorf("camera %q: unexpected track type %T: %w", dev.Label, tracks[0], media.ErrDeviceUnavailable)
	}
	return &deviceCamera{track: vt, reader: vt.NewReader(false)}, nil
}
