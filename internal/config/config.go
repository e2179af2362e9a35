package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	API             APIConfig         `yaml:"api"`
	Panel           PanelConfig       `yaml:"panel"`
	Server          ServerConfig      `yaml:"server"`
	Simulator       SimulatorConfig   `yaml:"simulator"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Log             LogConfig         `yaml:"log"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// APIConfig describes how to reach the light controller API
type APIConfig struct {
	URL     string   `yaml:"url"`    // Explicit base URL; empty = derive from the page host
	Scheme  string   `yaml:"scheme"` // Used when deriving (default: http)
	Port    int      `yaml:"port"`   // Used when deriving (default: 8000)
	Timeout Duration `yaml:"timeout"`
}

// PanelConfig contains live-control settings
type PanelConfig struct {
	ThrottleWindow Duration `yaml:"throttle_window"` // Minimum spacing of color updates (default: 50ms)
	CompactWidth   int      `yaml:"compact_width"`   // Widest viewport using the compact layout (default: 900)
}

// ServerConfig contains the panel server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	PublicHost     string   `yaml:"public_host"` // Host the panel is published under; the device API is expected there
	WebDir         string   `yaml:"web_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Empty = any origin
}

// SimulatorConfig contains the built-in device simulator settings
type SimulatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LedgerConfig contains dispatch ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Retention       Duration `yaml:"retention"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RecentLimit     int      `yaml:"recent_limit"` // Max entries returned by /api/ledger
}

// MQTTConfig contains the optional state mirror settings
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TopicPrefix string   `yaml:"topic_prefix"`
	Timeout     Duration `yaml:"timeout"` // Publish acknowledgement timeout
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 256)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// Addr returns host:port of the panel server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns host:port of the simulator
func (c *SimulatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns host:port of the health check server
func (c *HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
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

// Load reads and parses the configuration file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	// API defaults. TRULIGHT_API_URL is honored when no URL is configured.
	c.API.URL = strings.TrimSpace(c.API.URL)
	if c.API.URL == "" {
		c.API.URL = os.Getenv("TRULIGHT_API_URL")
	}
	if c.API.Scheme == "" {
		c.API.Scheme = "http"
	}
	if c.API.Port == 0 {
		c.API.Port = 8000
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(10 * time.Second)
	}

	// Panel defaults
	if c.Panel.ThrottleWindow == 0 {
		c.Panel.ThrottleWindow = Duration(50 * time.Millisecond)
	}
	if c.Panel.CompactWidth == 0 {
		c.Panel.CompactWidth = 900
	}

	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.WebDir == "" {
		c.Server.WebDir = "./web"
	}

	// Simulator defaults
	if c.Simulator.Host == "" {
		c.Simulator.Host = "127.0.0.1"
	}
	if c.Simulator.Port == 0 {
		c.Simulator.Port = 8000
	}

	// Ledger defaults
	if c.Ledger.Retention == 0 {
		c.Ledger.Retention = Duration(time.Hour)
	}
	if c.Ledger.CleanupInterval == 0 {
		c.Ledger.CleanupInterval = Duration(5 * time.Minute)
	}
	if c.Ledger.RecentLimit == 0 {
		c.Ledger.RecentLimit = 100
	}

	// MQTT mirror defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "trulight"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "trulight"
	}
	c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = Duration(2 * time.Second)
	}

	// Healthcheck defaults
	if c.Healthcheck.Port == 0 {
		c.Healthcheck.Port = 9090
	}
	if c.Healthcheck.Host == "" {
		c.Healthcheck.Host = "0.0.0.0"
	}

	// Event bus defaults
	if c.EventBus.Workers <= 0 {
		c.EventBus.Workers = 4
	}
	if c.EventBus.QueueSize <= 0 {
		c.EventBus.QueueSize = 256
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// General shutdown timeout
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	if c.Panel.ThrottleWindow.Duration() < 0 {
		return fmt.Errorf("config error: 'panel.throttle_window' must be positive")
	}
	if c.Panel.CompactWidth < 0 {
		return fmt.Errorf("config error: 'panel.compact_width' must be positive")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("config error: 'api.port' out of range: %d", c.API.Port)
	}
	if c.API.Scheme != "http" && c.API.Scheme != "https" {
		return fmt.Errorf("config error: 'api.scheme' must be http or https, got %q", c.API.Scheme)
	}
	if c.MQTT.Enabled && !strings.Contains(c.MQTT.Broker, "://") {
		return fmt.Errorf("config error: 'mqtt.broker' must include a scheme, got %q", c.MQTT.Broker)
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
