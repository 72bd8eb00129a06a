package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig         `yaml:"hue"`
	Cast            CastConfig        `yaml:"cast"`
	Poll            PollConfig        `yaml:"poll"`
	Log             LogConfig         `yaml:"log"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"`
	Token        string   `yaml:"token"`
	Group        string   `yaml:"group"`
	API          string   `yaml:"api"`     // "v1" (huego, default) or "v2" (CLIP grouped_light)
	Timeout      Duration `yaml:"timeout"` // HTTP timeout for Hue API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

// CastConfig contains cast receiver settings
type CastConfig struct {
	IdleApp          string   `yaml:"idle_app"` // Application shown while nothing is cast
	Name             string   `yaml:"name"`     // Friendly name filter, empty = first device found
	Address          string   `yaml:"address"`  // host or host:port, skips mDNS discovery
	DiscoveryTimeout Duration `yaml:"discovery_timeout"`
	Timeout          Duration `yaml:"timeout"` // Per-call probe timeout
}

// PollConfig contains control loop settings
type PollConfig struct {
	Interval Duration `yaml:"interval"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured level, lowercased
func (c *LogConfig) GetLevel() string {
	return strings.ToLower(c.Level)
}

// LedgerConfig contains transition ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Path            string   `yaml:"path"`
	RetentionDays   int      `yaml:"retention_days"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// Retention returns the retention window as a duration
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// MQTTConfig contains MQTT publisher settings
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port for the listener
func (c *HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 64)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling.
// Bare integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Error is returned for missing or malformed configuration.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Hue defaults
	if cfg.Hue.API == "" {
		cfg.Hue.API = "v1"
	}
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 5.0
	}

	// Cast defaults
	if cfg.Cast.IdleApp == "" {
		cfg.Cast.IdleApp = "Backdrop"
	}
	if cfg.Cast.DiscoveryTimeout == 0 {
		cfg.Cast.DiscoveryTimeout = Duration(5 * time.Second)
	}
	if cfg.Cast.Timeout == 0 {
		cfg.Cast.Timeout = Duration(5 * time.Second)
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(5 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./castlightd.sqlite"
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "castlightd"
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "castlightd"
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks that everything the control loop needs is present.
func (cfg *Config) Validate() error {
	switch {
	case cfg.Hue.Bridge == "":
		return &Error{Field: "hue.bridge", Reason: "bridge address is required"}
	case cfg.Hue.Token == "":
		return &Error{Field: "hue.token", Reason: "bridge API key is required"}
	case cfg.Hue.Group == "":
		return &Error{Field: "hue.group", Reason: "light group id is required"}
	}

	switch cfg.Hue.API {
	case "v1":
		if _, err := strconv.Atoi(cfg.Hue.Group); err != nil {
			return &Error{Field: "hue.group", Reason: fmt.Sprintf("v1 group id must be numeric, got %q", cfg.Hue.Group)}
		}
	case "v2":
	default:
		return &Error{Field: "hue.api", Reason: fmt.Sprintf("unknown API version %q (want v1 or v2)", cfg.Hue.API)}
	}

	if cfg.Hue.RateLimitRPS < 0 {
		return &Error{Field: "hue.rate_limit_rps", Reason: "must not be negative"}
	}
	if cfg.Poll.Interval.Duration() <= 0 {
		return &Error{Field: "poll.interval", Reason: "must be positive"}
	}
	if cfg.Cast.Timeout.Duration() <= 0 {
		return &Error{Field: "cast.timeout", Reason: "must be positive"}
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return &Error{Field: "mqtt.broker", Reason: "broker is required when mqtt is enabled"}
	}

	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
