package app

import (
	"fmt"
	"time"
)

// State store backends selectable at startup.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

// Config holds everything an App instance needs to run.
type Config struct {
	WorkflowPath    string
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	WorkerCount     int
	StateBackend    string
	RedisURL        string
	RunTimeout      time.Duration
	KeepState       bool
}

// NewConfig validates a Config and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, fmt.Errorf("workflow path is required")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.StateBackend == "" {
		cfg.StateBackend = StateBackendMemory
	}
	switch cfg.StateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("state backend %q requires a redis URL", cfg.StateBackend)
		}
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	return &cfg, nil
}
