package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/config"
	"github.com/Avicted/callrelay/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting call daemon",
		zap.String("server", cfg.ServerURL),
		zap.String("ipc", cfg.IPCAddr),
		zap.String("user_id", cfg.UserID))
	d := newDaemon(cfg, logger)
	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// parseConfig reads CALLRELAY_* from the environment and lets flags
// override it.
func parseConfig(args []string, stderr io.Writer) (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, err
	}

	fs := flag.NewFlagSet("callerd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "signaling server address")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer token sent when connecting")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id to register as")
	fs.StringVar(&cfg.UserName, "name", cfg.UserName, "display name")
	fs.StringVar(&cfg.IPCAddr, "ipc", cfg.IPCAddr, "ipc socket/pipe address")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address to serve prometheus metrics on (disabled when empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	fs.StringVar(&cfg.LogOutput, "log-output", cfg.LogOutput, "stderr, stdout or a file path")
	fs.Float64Var(&cfg.VADThreshold, "vad-threshold", cfg.VADThreshold, "speech RMS threshold in (0,1)")
	fs.IntVar(&cfg.VADHangover, "vad-hangover", cfg.VADHangover, "quiet buffers before speech ends")
	fs.Float64Var(&cfg.PlaybackGain, "gain", cfg.PlaybackGain, "playback gain")
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "video JPEG quality 1-100")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
