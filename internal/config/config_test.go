package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
  auth_token: hunter2
  max_connections: 50
observer:
  poll_interval: 500ms
  reconnect_attempts: 8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "hunter2" {
		t.Errorf("auth token = %q", cfg.Server.AuthToken)
	}
	if cfg.Server.MaxConnections != 50 {
		t.Errorf("max connections = %d", cfg.Server.MaxConnections)
	}
	if cfg.Observer.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Observer.PollInterval)
	}
	if cfg.Observer.ReconnectAttempts != 8 {
		t.Errorf("reconnect attempts = %d", cfg.Observer.ReconnectAttempts)
	}

	// Untouched keys keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Observer.ReconnectBase != time.Second {
		t.Errorf("reconnect base = %v, want default", cfg.Observer.ReconnectBase)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Observer.PollInterval != 2*time.Second {
		t.Errorf("default poll interval = %v", cfg.Observer.PollInterval)
	}
	if cfg.Observer.ReconnectAttempts != 5 {
		t.Errorf("default reconnect attempts = %d", cfg.Observer.ReconnectAttempts)
	}
}
