// Package config provides configuration management for go-hint
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Nav       NavConfig       `mapstructure:"nav"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// NavConfig configures the navigation loop
type NavConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	FixTimeout           time.Duration `mapstructure:"fix_timeout"`
	Staleness            time.Duration `mapstructure:"staleness"`
	StatusInterval       time.Duration `mapstructure:"status_interval"`
	ArrivalRadiusMeters  float64       `mapstructure:"arrival_radius_m"`
	ApproachRadiusMeters float64       `mapstructure:"approach_radius_m"`
	ImminentRadiusMeters float64       `mapstructure:"imminent_radius_m"`
	LostAfterMisses      int           `mapstructure:"lost_after_misses"`
}

// SpeechConfig configures the announcement pipeline
type SpeechConfig struct {
	Command   string `mapstructure:"command"`
	Rate      int    `mapstructure:"rate"`
	QueueSize int    `mapstructure:"queue_size"`
}

// RelayConfig configures the location relay connection
type RelayConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

// RoutingConfig configures the OSRM routing client
type RoutingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Mode    string        `mapstructure:"mode"` // walking, driving, cycling
	Timeout time.Duration `mapstructure:"timeout"`
}

// GeocodingConfig configures the Nominatim geocoding client
type GeocodingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Nav: NavConfig{
			PollInterval:         5 * time.Second,
			FixTimeout:           10 * time.Second,
			Staleness:            30 * time.Second,
			StatusInterval:       60 * time.Second,
			ArrivalRadiusMeters:  20,
			ApproachRadiusMeters: 100,
			ImminentRadiusMeters: 50,
			LostAfterMisses:      3,
		},
		Speech: SpeechConfig{
			Command:   "espeak-ng",
			Rate:      150,
			QueueSize: 16,
		},
		Relay: RelayConfig{
			Enabled:          false,
			URL:              "ws://localhost:8080/ws/nav",
			ReconnectBackoff: 1 * time.Second,
			MaxBackoff:       30 * time.Second,
			PingInterval:     10 * time.Second,
		},
		Routing: RoutingConfig{
			BaseURL: "http://router.project-osrm.org",
			Mode:    "walking",
			Timeout: 15 * time.Second,
		},
		Geocoding: GeocodingConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "go-hint/1.0",
			Timeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Config file not found is okay, use defaults
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				// Only warn, don't fail - we have defaults
				fmt.Printf("Warning: config file not found at %s, using defaults\n", path)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("HINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// Nav defaults
	v.SetDefault("nav.poll_interval", "5s")
	v.SetDefault("nav.fix_timeout", "10s")
	v.SetDefault("nav.staleness", "30s")
	v.SetDefault("nav.status_interval", "60s")
	v.SetDefault("nav.arrival_radius_m", 20.0)
	v.SetDefault("nav.approach_radius_m", 100.0)
	v.SetDefault("nav.imminent_radius_m", 50.0)
	v.SetDefault("nav.lost_after_misses", 3)

	// Speech defaults
	v.SetDefault("speech.command", "espeak-ng")
	v.SetDefault("speech.rate", 150)
	v.SetDefault("speech.queue_size", 16)

	// Relay defaults
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.url", "ws://localhost:8080/ws/nav")
	v.SetDefault("relay.reconnect_backoff", "1s")
	v.SetDefault("relay.max_backoff", "30s")
	v.SetDefault("relay.ping_interval", "10s")

	// Routing defaults
	v.SetDefault("routing.base_url", "http://router.project-osrm.org")
	v.SetDefault("routing.mode", "walking")
	v.SetDefault("routing.timeout", "15s")

	// Geocoding defaults
	v.SetDefault("geocoding.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.user_agent", "go-hint/1.0")
	v.SetDefault("geocoding.timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Nav.PollInterval < time.Second {
		return fmt.Errorf("poll_interval must be at least 1s, got %s", c.Nav.PollInterval)
	}

	if c.Nav.ArrivalRadiusMeters <= 0 {
		return fmt.Errorf("arrival_radius_m must be positive, got %f", c.Nav.ArrivalRadiusMeters)
	}

	if c.Nav.ApproachRadiusMeters < c.Nav.ImminentRadiusMeters {
		return fmt.Errorf("approach_radius_m (%f) must be at least imminent_radius_m (%f)",
			c.Nav.ApproachRadiusMeters, c.Nav.ImminentRadiusMeters)
	}

	if c.Nav.LostAfterMisses < 1 {
		return fmt.Errorf("lost_after_misses must be at least 1, got %d", c.Nav.LostAfterMisses)
	}

	switch c.Routing.Mode {
	case "walking", "driving", "cycling":
	default:
		return fmt.Errorf("unknown routing mode %q", c.Routing.Mode)
	}

	return nil
}
