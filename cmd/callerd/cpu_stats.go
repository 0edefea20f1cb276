package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const cpuSampleInterval = 10 * time.Second

// cpuSampler reports the daemon's own CPU share once per interval.
type cpuSampler struct {
	interval time.Duration
	percent  func(context.Context) (float64, error)
	logger   *zap.Logger
}

func newCPUSampler(ctx context.Context, logger *zap.Logger) (*cpuSampler, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspect own process: %w", err)
	}
	return &cpuSampler{
		interval: cpuSampleInterval,
		percent: func(ctx context.Context) (float64, error) {
			return proc.PercentWithContext(ctx, 0)
		},
		logger: logger,
	}, nil
}

// run calls report with each reading until ctx is done. The first reading
// only establishes a baseline and is not reported.
func (s *cpuSampler) run(ctx context.Context, report func(percent float64)) {
	_, _ = s.percent(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percent, err := s.percent(ctx)
			if err != nil {
				s.logger.Debug("cpu sample failed", zap.Error(err))
				continue
			}
			report(percent)
		}
	}
}
