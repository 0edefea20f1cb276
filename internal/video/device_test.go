package video

import (
	"testing"

	"github.com/Avicted/callrelay/internal/media"
)

func TestSelectDevice(t *testing.T) {
	tests := []struct {
		name    string
		devices []DeviceInfo
		facing  media.Facing
		wantID  string
		wantOK  bool
	}{
		{name: "none", facing: media.FacingFront},
		{
			name:    "front by label",
			devices: []DeviceInfo{{ID: "a", Label: "Rear Camera"}, {ID: "b", Label: "Front Camera"}},
			facing:  media.FacingFront,
			wantID:  "b",
			wantOK:  true,
		},
		{
			name:    "back by label",
			devices: []DeviceInfo{{ID: "a", Label: "User facing"}, {ID: "b", Label: "Environment"}},
			facing:  media.FacingBack,
			wantID:  "b",
			wantOK:  true,
		},
		{
			name:    "front falls back to first",
			devices: []DeviceInfo{{ID: "video0"}, {ID: "video2"}},
			facing:  media.FacingFront,
			wantID:  "video0",
			wantOK:  true,
		},
		{
			name:    "back falls back to second",
			devices: []DeviceInfo{{ID: "video0"}, {ID: "video2"}},
			facing:  media.FacingBack,
			wantID:  "video2",
			wantOK:  true,
		},
		{
			name:    "single camera serves both",
			devices: []DeviceInfo{{ID: "video0"}},
			facing:  media.FacingBack,
			wantID:  "video0",
			wantOK:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectDevice(tt.devices, tt.facing)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Fatalf("SelectDevice() = %q, %v; want %q, %v", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
