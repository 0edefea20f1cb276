//go:build linux

package audio

import "github.com/gen2brain/malgo"

var (
	malgoInitContext            = malgo.InitContext
	malgoDefaultDeviceConfig    = malgo.DefaultDeviceConfig
	malgoInitDevice             = malgo.InitDevice
	malgoContextUninit          = (*malgo.AllocatedContext).Uninit
	malgoContextFree            = (*malgo.AllocatedContext).Free
	malgoDeviceStart            = (*malgo.Device).Start
	malgoDeviceUninit           = (*malgo.Device).Uninit
	malgoDeviceSampleRate       = (*malgo.Device).SampleRate
	malgoDevicePlaybackChannels = (*malgo.Device).PlaybackChannels
)

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = malgoContextUninit(ctx)
	malgoContextFree(ctx)
}
