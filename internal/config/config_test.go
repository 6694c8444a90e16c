package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.APIServer.Port != "8081" {
		t.Errorf("ports = %s/%s, want 8080/8081", cfg.Server.Port, cfg.APIServer.Port)
	}
	if cfg.Server.WebSocketPath != "/ws" {
		t.Errorf("websocket path = %s, want /ws", cfg.Server.WebSocketPath)
	}
	if cfg.Presence.TypingQuietPeriod != 3*time.Second {
		t.Errorf("typing quiet period = %s, want 3s", cfg.Presence.TypingQuietPeriod)
	}
	if cfg.Call.RingTimeout != 60*time.Second {
		t.Errorf("ring timeout = %s, want 60s", cfg.Call.RingTimeout)
	}
	if cfg.Scheduler.PollInterval != 60*time.Second || cfg.Scheduler.MaxRetries != 3 || cfg.Scheduler.RetryBackoff != 60*time.Second {
		t.Errorf("scheduler config = %+v", cfg.Scheduler)
	}
	if cfg.Sweeper.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval = %s, want 5m", cfg.Sweeper.SweepInterval)
	}
	if cfg.Status.TTL != 24*time.Hour {
		t.Errorf("status ttl = %s, want 24h", cfg.Status.TTL)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("database type = %s, want postgres", cfg.Database.Type)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("kafka brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.WebSocket.SendBufferSize != 256 || cfg.WebSocket.PongWaitSeconds != 60 {
		t.Errorf("websocket config = %+v", cfg.WebSocket)
	}
	if cfg.Auth.JWTExpiry != 24*time.Hour {
		t.Errorf("jwt expiry = %s, want 24h", cfg.Auth.JWTExpiry)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
SERVER:
  PORT: "9090"
PRESENCE:
  TYPING_QUIET_PERIOD: 5s
CALL:
  RING_TIMEOUT: 30s
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Server.Port)
	}
	if cfg.Presence.TypingQuietPeriod != 5*time.Second {
		t.Errorf("typing quiet period = %s, want 5s", cfg.Presence.TypingQuietPeriod)
	}
	if cfg.Call.RingTimeout != 30*time.Second {
		t.Errorf("ring timeout = %s, want 30s", cfg.Call.RingTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.APIServer.Port != "8081" {
		t.Errorf("api port = %s, want default 8081", cfg.APIServer.Port)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("an explicitly named missing file should be an error")
	}
}
