// Package config resolves startup configuration from the environment,
// with defaults, and resolves on-disk state directories through xdg.
// Modeled on the teacher's config_manager.go: environment/defaults for
// transient settings, xdg-resolved paths plus atomic temp+rename for
// anything that must survive a restart (callers needing that pattern
// use the same helper the tracker and peer identity already apply —
// see pkg/tracker/persistence.go and pkg/identity).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

const (
	DefaultTrackerPort = 8888
	DefaultPeerPort    = 9000

	DefaultMaxFileSize       = 100 * 1024 * 1024
	DefaultSocketTimeout     = 30 * time.Second
	DefaultTaskTimeout       = 60 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultPeerTimeout       = 30 * time.Second
	DefaultBufferSize        = 1024 * 1024
)

// Config holds every environment-tunable setting read at startup.
type Config struct {
	TrackerHost string
	TrackerPort int
	PeerPort    int

	MaxFileSize       int64
	SocketTimeout     time.Duration
	TaskTimeout       time.Duration
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	BufferSize        int
}

// Load reads TRACKER_HOST, TRACKER_PORT, PEER_PORT and the tunable
// limits from the environment, falling back to spec defaults for
// anything unset or malformed.
func Load() Config {
	return Config{
		TrackerHost: envString("TRACKER_HOST", "127.0.0.1"),
		TrackerPort: envInt("TRACKER_PORT", DefaultTrackerPort),
		PeerPort:    envInt("PEER_PORT", DefaultPeerPort),

		MaxFileSize:       envInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
		SocketTimeout:      envDuration("SOCKET_TIMEOUT", DefaultSocketTimeout),
		TaskTimeout:        envDuration("TASK_TIMEOUT", DefaultTaskTimeout),
		HeartbeatInterval:  envDuration("HEARTBEAT_INTERVAL", DefaultHeartbeatInterval),
		PeerTimeout:        envDuration("PEER_TIMEOUT", DefaultPeerTimeout),
		BufferSize:         envInt("BUFFER_SIZE", DefaultBufferSize),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Bare integers in the environment are seconds, matching the
	// spec's "SOCKET_TIMEOUT 30 s"-style defaults; a suffixed duration
	// string ("30s", "1m") is also accepted.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// TrackerStateDir resolves (and creates) the tracker's xdg state
// directory, e.g. for owned_files.json.
func TrackerStateDir() (string, error) {
	path, err := xdg.DataFile("fabric/tracker/owned_files.json")
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

// PeerStateDir resolves (and creates) a peer's xdg state directory for
// its durable identity and owned-file custody root.
func PeerStateDir() (string, error) {
	path, err := xdg.DataFile("fabric/peer/identity.json")
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}
