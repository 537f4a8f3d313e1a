package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BackendURL          string
	WorkerSecret        string
	AgentName           string
	LiveKitURL          string
	LiveKitAPIKey       string
	LiveKitAPISecret    string
	Port                int
	LogLevel            string
	ControlPlaneTimeout time.Duration
}

func Load() Config {
	return Config{
		BackendURL:          envStr("BACKEND_URL", "http://localhost:4003"),
		WorkerSecret:        envStr("WORKER_SECRET", ""),
		AgentName:           envStr("AGENT_NAME", "my-agent"),
		LiveKitURL:          envStr("LIVEKIT_URL", ""),
		LiveKitAPIKey:       envStr("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret:    envStr("LIVEKIT_API_SECRET", ""),
		Port:                envInt("WORKER_PORT", 8081),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		ControlPlaneTimeout: time.Duration(envInt("CONTROL_PLANE_TIMEOUT_MS", 10000)) * time.Millisecond,
	}
}

// ValidateLiveKit reports the LiveKit settings the worker cannot join rooms
// without.
func (c Config) ValidateLiveKit() error {
	var errs []error
	if c.LiveKitURL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is not set"))
	}
	if c.LiveKitAPIKey == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY is not set"))
	}
	if c.LiveKitAPISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_SECRET is not set"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
