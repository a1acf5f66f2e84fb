package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type StorageType string

const (
	StoragePostgres StorageType = "postgres"
	StorageMemory   StorageType = "memory"
)

type Config struct {
	HTTPPort           int
	DatabaseURL        string
	Storage            StorageType
	ExecutorURL        string
	ExecutorTimeout    time.Duration
	RecorderQueueSize  int
	DefinitionCacheTTL time.Duration
	LogLevel           string
	LogFormat          string
	AllowedOrigins     []string
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Validate checks the values the server cannot start without.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http-port: %d", c.HTTPPort)
	}

	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database-url is required when storage is postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage: %q, must be 'postgres' or 'memory'", c.Storage)
	}

	if c.ExecutorURL == "" {
		return errors.New("executor-url is required")
	}
	if c.ExecutorTimeout < 0 {
		return errors.New("executor-timeout cannot be negative")
	}
	if c.RecorderQueueSize <= 0 {
		return errors.New("recorder-queue-size must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return errors.New("invalid log-format: must be 'text' or 'json'")
	}
	return nil
}
