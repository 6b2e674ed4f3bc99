package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.OutboxCapacity != 64 {
		t.Errorf("OutboxCapacity = %d, want 64", cfg.OutboxCapacity)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.MaxFrameBytes != 5<<20 {
		t.Errorf("MaxFrameBytes = %d, want 5MiB", cfg.MaxFrameBytes)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	os.Setenv("COLLABKIT_PORT", "9999")
	os.Setenv("COLLABKIT_REQUEST_TIMEOUT", "2s")
	defer os.Unsetenv("COLLABKIT_PORT")
	defer os.Unsetenv("COLLABKIT_REQUEST_TIMEOUT")

	cfg := FromEnv()

	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	os.Setenv("COLLABKIT_PORT", "not-a-number")
	defer os.Unsetenv("COLLABKIT_PORT")

	cfg := FromEnv()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d on malformed env value", cfg.Port, DefaultPort)
	}
}
