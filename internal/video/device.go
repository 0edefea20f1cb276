package video

import (
	"strings"

	"github.com/Avicted/callrelay/internal/media"
)

type DeviceInfo struct {
	ID    string
	Label string
}

var (
	frontLabels = []string{"front", "user", "facetime", "integrated"}
	backLabels  = []string{"back", "rear", "environment", "world"}
)

// SelectDevice picks the camera for facing by label, falling back to
// enumeration order: first device for front, second (or only) for back.
func SelectDevice(devices []DeviceInfo, facing media.Facing) (DeviceInfo, bool) {
	if len(devices) == 0 {
		return DeviceInfo{}, false
	}
	want := frontLabels
	if facing == media.FacingBack {
		want = backLabels
	}
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, w := range want {
			if strings.Contains(label, w) {
				return d, true
			}
		}
	}
	if facing == media.FacingBack && len(devices) > 1 {
		return devices[1], true
	}
	return devices[0], true
}
