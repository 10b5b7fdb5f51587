package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	if cfg.Nav.PollInterval != 5*time.Second {
		t.Errorf("expected poll_interval 5s, got %v", cfg.Nav.PollInterval)
	}

	if cfg.Nav.ArrivalRadiusMeters != 20 {
		t.Errorf("expected arrival_radius_m 20, got %f", cfg.Nav.ArrivalRadiusMeters)
	}

	if cfg.Speech.Command != "espeak-ng" {
		t.Errorf("expected speech command espeak-ng, got %s", cfg.Speech.Command)
	}

	if cfg.Routing.Mode != "walking" {
		t.Errorf("expected routing mode walking, got %s", cfg.Routing.Mode)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Logging.Level)
	}
}

func TestLoad_NoFile(t *testing.T) {
	// Load with non-existent file should use defaults
	cfg, err := Load("/nonexistent/path.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected default port 9000, got %d", cfg.Server.Port)
	}

	if cfg.Nav.LostAfterMisses != 3 {
		t.Errorf("expected default lost_after_misses 3, got %d", cfg.Nav.LostAfterMisses)
	}
}

func TestLoad_WithFile(t *testing.T) {
	// Create temp config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
nav:
  poll_interval: 2s
  arrival_radius_m: 15
  lost_after_misses: 5
speech:
  rate: 180
relay:
  enabled: true
  url: ws://relay.example.com/ws/nav
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Nav.PollInterval != 2*time.Second {
		t.Errorf("expected poll_interval 2s, got %v", cfg.Nav.PollInterval)
	}

	if cfg.Nav.ArrivalRadiusMeters != 15 {
		t.Errorf("expected arrival_radius_m 15, got %f", cfg.Nav.ArrivalRadiusMeters)
	}

	if cfg.Nav.LostAfterMisses != 5 {
		t.Errorf("expected lost_after_misses 5, got %d", cfg.Nav.LostAfterMisses)
	}

	if cfg.Speech.Rate != 180 {
		t.Errorf("expected speech rate 180, got %d", cfg.Speech.Rate)
	}

	if !cfg.Relay.Enabled {
		t.Error("expected relay enabled")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}

	// Untouched sections keep defaults
	if cfg.Routing.Mode != "walking" {
		t.Errorf("expected default routing mode walking, got %s", cfg.Routing.Mode)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	// Set environment variable
	os.Setenv("HINT_SERVER_PORT", "7777")
	defer os.Unsetenv("HINT_SERVER_PORT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid port too low",
			modify: func(c *Config) {
				c.Server.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid port too high",
			modify: func(c *Config) {
				c.Server.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "poll interval too short",
			modify: func(c *Config) {
				c.Nav.PollInterval = 100 * time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "arrival radius not positive",
			modify: func(c *Config) {
				c.Nav.ArrivalRadiusMeters = 0
			},
			wantErr: true,
		},
		{
			name: "imminent radius beyond approach radius",
			modify: func(c *Config) {
				c.Nav.ApproachRadiusMeters = 40
				c.Nav.ImminentRadiusMeters = 50
			},
			wantErr: true,
		},
		{
			name: "lost threshold too low",
			modify: func(c *Config) {
				c.Nav.LostAfterMisses = 0
			},
			wantErr: true,
		},
		{
			name: "unknown routing mode",
			modify: func(c *Config) {
				c.Routing.Mode = "teleport"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Timeouts(t *testing.T) {
	cfg := Default()

	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout 10s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("expected write_timeout 10s, got %v", cfg.Server.WriteTimeout)
	}

	if cfg.Server.GracefulTimeout != 5*time.Second {
		t.Errorf("expected graceful_timeout 5s, got %v", cfg.Server.GracefulTimeout)
	}
}
