package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Avicted/callrelay/internal/ipc"
)

const (
	DefaultReconnectDelay    = time.Second
	DefaultReconnectAttempts = 1_000_000
	DefaultVADThreshold      = 0.02
	DefaultVADHangover       = 15
	DefaultPlaybackGain      = 4.0
	DefaultJPEGQuality       = 50
)

type Config struct {
	ServerURL   string
	Token       string
	UserID      string
	UserName    string
	IPCAddr     string
	MetricsAddr string

	LogLevel  string
	LogFormat string
	LogOutput string

	ReconnectDelay    time.Duration
	ReconnectAttempts uint64

	VADThreshold float64
	VADHangover  int
	PlaybackGain float64
	JPEGQuality  int
}

func Default() Config {
	return Config{
		IPCAddr:           ipc.DefaultAddr(),
		LogLevel:          "info",
		LogFormat:         "console",
		ReconnectDelay:    DefaultReconnectDelay,
		ReconnectAttempts: DefaultReconnectAttempts,
		VADThreshold:      DefaultVADThreshold,
		VADHangover:       DefaultVADHangover,
		PlaybackGain:      DefaultPlaybackGain,
		JPEGQuality:       DefaultJPEGQuality,
	}
}

func LoadFromEnv() (Config, error) {
	cfg := Default()
	cfg.ServerURL = os.Getenv("CALLRELAY_SERVER")
	cfg.Token = os.Getenv("CALLRELAY_TOKEN")
	cfg.UserID = os.Getenv("CALLRELAY_USER_ID")
	cfg.UserName = os.Getenv("CALLRELAY_USER_NAME")
	cfg.MetricsAddr = os.Getenv("CALLRELAY_METRICS_ADDR")
	cfg.LogOutput = os.Getenv("CALLRELAY_LOG_OUTPUT")

	if v := os.Getenv("CALLRELAY_IPC"); v != "" {
		cfg.IPCAddr = v
	}
	if v := os.Getenv("CALLRELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CALLRELAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CALLRELAY_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("reconnect delay: %w", err)
		}
		cfg.ReconnectDelay = d
	}
	if v := os.Getenv("CALLRELAY_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("reconnect attempts: %w", err)
		}
		cfg.ReconnectAttempts = n
	}
	if v := os.Getenv("CALLRELAY_VAD_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("vad threshold: %w", err)
		}
		cfg.VADThreshold = f
	}
	if v := os.Getenv("CALLRELAY_VAD_HANGOVER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("vad hangover: %w", err)
		}
		cfg.VADHangover = n
	}
	if v := os.Getenv("CALLRELAY_PLAYBACK_GAIN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("playback gain: %w", err)
		}
		cfg.PlaybackGain = f
	}
	if v := os.Getenv("CALLRELAY_JPEG_QUALITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("jpeg quality: %w", err)
		}
		cfg.JPEGQuality = n
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") &&
		!strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return errors.New("server url must use http, https, ws or wss")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(c.UserName) == "" {
		return errors.New("user name is required")
	}
	if c.IPCAddr == "" {
		return errors.New("ipc address is required")
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("reconnect delay must be positive")
	}
	if c.ReconnectAttempts == 0 {
		return errors.New("reconnect attempts must be positive")
	}
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return errors.New("vad threshold must be between 0 and 1")
	}
	if c.VADHangover < 1 {
		return errors.New("vad hangover must be at least one buffer")
	}
	if c.PlaybackGain <= 0 {
		return errors.New("playback gain must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("jpeg quality must be between 1 and 100")
	}
	return nil
}
