package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const statsInterval = 10 * time.Second

// Stats is a windowed frame count, reset every time it is logged.
type Stats struct {
	framesSent     atomic.Int64
	framesReceived atomic.Int64
	framesDropped  atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordFrame(direction, result string) {
	if s == nil {
		return
	}
	switch {
	case result != "relayed":
		s.framesDropped.Add(1)
	case direction == "out":
		s.framesSent.Add(1)
	default:
		s.framesReceived.Add(1)
	}
}

// Snapshot returns the counts of the current window and starts a new one.
func (s *Stats) Snapshot() (sent, received, dropped int64) {
	if s == nil {
		return 0, 0, 0
	}
	return s.framesSent.Swap(0), s.framesReceived.Swap(0), s.framesDropped.Swap(0)
}

func (s *Stats) LogLoop(ctx context.Context, logger *zap.Logger) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, received, dropped := s.Snapshot()
			if sent+received+dropped == 0 {
				continue
			}
			logger.Info("relay stats",
				zap.Int64("frames_sent", sent),
				zap.Int64("frames_received", received),
				zap.Int64("frames_dropped", dropped))
		}
	}
}
