// Package config loads process configuration from the environment, with a
// .env file picked up in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything main needs to wire the process.
type Config struct {
	// LocalDBPath is where the durable queue lives on device.
	LocalDBPath string
	// RemoteDatabaseURL is the hosted backend's Postgres DSN.
	RemoteDatabaseURL string
	// RemoteCallTimeout bounds every remote store call.
	RemoteCallTimeout time.Duration
	// SyncInterval is how often the periodic drain pass runs.
	SyncInterval time.Duration
	// HTTPAddr is the listen address for the game-facing API.
	HTTPAddr string
}

// Load reads configuration from the environment. A missing .env file is
// fine; a missing remote DSN is not.
func Load() (*Config, error) {
	// Best effort; real deployments set the environment directly.
	_ = godotenv.Load()

	remoteURL := os.Getenv("REMOTE_DATABASE_URL")
	if remoteURL == "" {
		return nil, fmt.Errorf("REMOTE_DATABASE_URL environment variable is not set")
	}

	return &Config{
		LocalDBPath:       envString("LOCAL_DB_PATH", "data/spelling-stars.db"),
		RemoteDatabaseURL: remoteURL,
		RemoteCallTimeout: envSeconds("REMOTE_CALL_TIMEOUT_SECONDS", 5),
		SyncInterval:      envSeconds("SYNC_INTERVAL_SECONDS", 60),
		HTTPAddr:          envString("HTTP_ADDR", ":8080"),
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}
