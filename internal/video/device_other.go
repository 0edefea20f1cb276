//go:build !linux

package video

import (
	"fmt"

	"github.com/Avicted/callrelay/internal/media"
)

func OpenDevice(media.Facing) (Camera, error) {
	return nil, fmt.Errorf("camera capture: %w", media.ErrUnsupported)
}
