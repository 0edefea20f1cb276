package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/audio"
	"github.com/Avicted/callrelay/internal/config"
	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/video"
)

// mediaDevices opens the real microphone, camera and speaker for a call.
type mediaDevices struct {
	cfg    config.Config
	logger *zap.Logger
	camera video.Opener
}

func newMediaDevices(cfg config.Config, logger *zap.Logger) *mediaDevices {
	return &mediaDevices{cfg: cfg, logger: logger, camera: video.OpenDevice}
}

func (d *mediaDevices) OpenAudioCapture(ctx context.Context, events chan<- media.Event) (media.Pipeline, error) {
	p, err := audio.OpenCapture(ctx, events, audio.CaptureConfig{
		VADThreshold: d.cfg.VADThreshold,
		VADHangover:  d.cfg.VADHangover,
		Logger:       d.logger.Named("audio"),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *mediaDevices) OpenVideoCapture(_ context.Context, facing media.Facing, events chan<- media.Event) (media.VideoCapture, error) {
	p, err := video.Start(d.camera, facing, events, video.Config{
		Quality: d.cfg.JPEGQuality,
		Logger:  d.logger.Named("video"),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *mediaDevices) OpenPlayback(ctx context.Context) (media.Playback, error) {
	p, err := audio.OpenPlayback(ctx, d.cfg.PlaybackGain)
	if err != nil {
		return nil, err
	}
	return p, nil
}
