// Package config holds the broker's runtime tunables. It follows the
// pattern buffkit's own Config struct uses: a single value with sane
// zero-value-safe defaults, overridable from the environment via envy
// before CLI flags are applied on top.
package config

import (
	"errors"
	"time"

	"github.com/gobuffalo/envy"

	"github.com/johnjansen/collabkit/wire"
)

// Defaults, as fixed by the broker's specification. CLI flags may
// override them at startup; nothing inside broker/ ever assumes a
// different value than what's in a live Config.
const (
	DefaultPort           = 8080
	DefaultOutboxCapacity = 64
	DefaultRequestTimeout = 5 * time.Second
	DefaultMaxFrameBytes  = wire.DefaultMaxFrameBytes
	DefaultListenBacklog  = 128
	DefaultMaxConnections = 0 // 0 = unlimited
	DefaultLogLevel       = "info"
)

// Config is the full set of knobs the broker needs to run.
type Config struct {
	// Port is the TCP port the broker listens on, all interfaces.
	Port int

	// OutboxCapacity bounds each client session's outbound frame queue.
	// Overflow drops the newest frame for that recipient; it never blocks
	// the router and never tears the connection down.
	OutboxCapacity int

	// MaxFrameBytes is the inbound frame ceiling, terminator included.
	// Exceeding it is fatal to the offending connection.
	MaxFrameBytes int

	// RequestTimeout bounds how long a host-directed request waits for a
	// response before the requester gets a synthetic error frame.
	RequestTimeout time.Duration

	// MaxConnections caps concurrent accepted sockets; 0 disables the cap.
	MaxConnections int

	// LogLevel controls the verbosity of the broker's structured logger.
	LogLevel string
}

// Default returns the broker's out-of-the-box configuration, matching the
// specification's fixed constants exactly.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		OutboxCapacity: DefaultOutboxCapacity,
		MaxFrameBytes:  DefaultMaxFrameBytes,
		RequestTimeout: DefaultRequestTimeout,
		MaxConnections: DefaultMaxConnections,
		LogLevel:       DefaultLogLevel,
	}
}

// FromEnv layers environment-variable overrides onto Default(), the way
// buffkit.App() calls envy.Load() then envy.Get() for each tunable before
// flags get a chance to override them again. Malformed environment values
// are ignored and the default is kept; this function never errors.
func FromEnv() Config {
	cfg := Default()

	envy.Load()

	if v := envy.Get("COLLABKIT_PORT", ""); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Port = n
		}
	}
	if v := envy.Get("COLLABKIT_OUTBOX_CAPACITY", ""); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.OutboxCapacity = n
		}
	}
	if v := envy.Get("COLLABKIT_MAX_FRAME_BYTES", ""); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.MaxFrameBytes = n
		}
	}
	if v := envy.Get("COLLABKIT_REQUEST_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := envy.Get("COLLABKIT_MAX_CONNECTIONS", ""); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.MaxConnections = n
		}
	}
	if v := envy.Get("COLLABKIT_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, errNotANumber
	}
	return n, nil
}

var errNotANumber = errors.New("config: not a positive integer")
