package voxelsync

import "time"

const (
	// DefaultFullResyncRatio is the fraction of changed voxels above which a
	// full snapshot is sent instead of a sparse delta.  Empirically chosen:
	// past roughly a third of the volume, a compressed full frame is both
	// smaller and simpler to reconcile than a huge sparse list.
	DefaultFullResyncRatio = 0.30

	// DefaultDebounceIntervalMs is the quiet period after the last local
	// mutation before an outgoing sync is computed.
	DefaultDebounceIntervalMs = 2000

	// DefaultKeepaliveIntervalMs is the ping interval used to detect
	// half-open connections.
	DefaultKeepaliveIntervalMs = 5000

	// DefaultPollIntervalMs is the inbound message poll interval.
	DefaultPollIntervalMs = 100

	// DefaultConnectTimeoutMs bounds the wait for the Connected transition.
	DefaultConnectTimeoutMs = 5000
)

// EngineConfig holds the tunable constants of the sync engine.  The zero
// value is not usable; start from DefaultEngineConfig().
type EngineConfig struct {
	// FullResyncRatio is the changed-voxel fraction above which diffing
	// gives up and a full snapshot is transmitted.
	FullResyncRatio float64 `toml:"full_resync_ratio"`

	// DebounceIntervalMs is the local-edit coalescing window in milliseconds.
	DebounceIntervalMs uint64 `toml:"debounce_interval_ms"`

	// KeepaliveIntervalMs is the ping interval in milliseconds.
	KeepaliveIntervalMs uint64 `toml:"keepalive_interval_ms"`

	// PollIntervalMs is the inbound poll interval in milliseconds.
	PollIntervalMs uint64 `toml:"poll_interval_ms"`

	// ConnectTimeoutMs bounds the initial connect in milliseconds.
	ConnectTimeoutMs uint64 `toml:"connect_timeout_ms"`

	// Compression names the wire compression: "zlib" (default), "snappy",
	// or "none".
	Compression string `toml:"compression"`
}

// DefaultEngineConfig returns an EngineConfig with all defaults set.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FullResyncRatio:     DefaultFullResyncRatio,
		DebounceIntervalMs:  DefaultDebounceIntervalMs,
		KeepaliveIntervalMs: DefaultKeepaliveIntervalMs,
		PollIntervalMs:      DefaultPollIntervalMs,
		ConnectTimeoutMs:    DefaultConnectTimeoutMs,
		Compression:         "zlib",
	}
}

// FillDefaults replaces zero-valued settings with defaults so partially
// specified TOML configs behave sensibly.
func (c *EngineConfig) FillDefaults() {
	d := DefaultEngineConfig()
	if c.FullResyncRatio <= 0 {
		c.FullResyncRatio = d.FullResyncRatio
	}
	if c.DebounceIntervalMs == 0 {
		c.DebounceIntervalMs = d.DebounceIntervalMs
	}
	if c.KeepaliveIntervalMs == 0 {
		c.KeepaliveIntervalMs = d.KeepaliveIntervalMs
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = d.PollIntervalMs
	}
	if c.ConnectTimeoutMs == 0 {
		c.ConnectTimeoutMs = d.ConnectTimeoutMs
	}
	if c.Compression == "" {
		c.Compression = d.Compression
	}
}

// DebounceInterval returns the coalescing window as a time.Duration.
func (c EngineConfig) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceIntervalMs) * time.Millisecond
}

// KeepaliveInterval returns the ping interval as a time.Duration.
func (c EngineConfig) KeepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveIntervalMs) * time.Millisecond
}

// PollInterval returns the inbound poll interval as a time.Duration.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ConnectTimeout returns the connect bound as a time.Duration.
func (c EngineConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}
