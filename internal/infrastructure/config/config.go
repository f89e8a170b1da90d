package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the NHC bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controllers  []ControllerConfig `yaml:"controllers"`
	Availability AvailabilityConfig `yaml:"availability"`
	Database     DatabaseConfig     `yaml:"database"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ControllerConfig describes one Niko Home Control controller.
type ControllerConfig struct {
	// ID is the stable identifier used in API paths and metrics labels.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`

	// Token is the Hobby API JWT issued by the Niko Home Control portal.
	Token string `yaml:"token"`

	TLS ControllerTLSConfig `yaml:"tls"`

	// ReconnectInterval is the transport's fixed retry period.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// RefreshInterval is how often a fresh device snapshot is requested.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// BatchDelay is the coalescing window for outbound property writes.
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// ControllerTLSConfig contains transport security settings for a controller.
// The zero value is TLS without certificate verification, since controllers
// ship a self-signed certificate.
type ControllerTLSConfig struct {
	// Disabled connects over plain TCP (test brokers only).
	Disabled bool `yaml:"disabled"`

	// Verify checks the controller certificate against CAFile or the system pool.
	Verify bool `yaml:"verify"`

	// CAFile optionally pins a CA bundle used when Verify is set.
	CAFile string `yaml:"ca_file,omitempty"`
}

// AvailabilityConfig controls the periodic availability re-check.
type AvailabilityConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DatabaseConfig contains SQLite settings for the property history store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention is how long history rows are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists browser origins allowed to call the API.
// An empty list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string   `yaml:"path"`
	MaxMessageSize int      `yaml:"max_message_size"`
	PingInterval   int      `yaml:"ping_interval"`
	PongTimeout    int      `yaml:"pong_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Controller defaults, matching the Hobby API's published connection settings.
const (
	DefaultControllerPort     = 8884
	DefaultControllerUsername = "hobby"
	DefaultReconnectInterval  = 10 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultRefreshInterval    = 15 * time.Minute
	DefaultBatchDelay         = 50 * time.Millisecond
	DefaultAvailability       = 10 * time.Second
	DefaultHistoryRetention   = 30 * 24 * time.Hour
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Per-controller defaults for fields the file left empty
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: NHCBRIDGE_SECTION_KEY
// For example: NHCBRIDGE_DATABASE_PATH, NHCBRIDGE_API_PORT,
// NHCBRIDGE_CONTROLLER_HOME_TOKEN (controller id "home").
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i := range cfg.Controllers {
		applyControllerDefaults(&cfg.Controllers[i])
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Availability: AvailabilityConfig{
			Enabled:  true,
			Interval: DefaultAvailability,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/nhcbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   DefaultHistoryRetention,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// DefaultController returns a controller entry with every optional field
// set to its default.
func DefaultController() ControllerConfig {
	var c ControllerConfig
	applyControllerDefaults(&c)
	return c
}

// applyControllerDefaults fills zero-valued optional fields.
func applyControllerDefaults(c *ControllerConfig) {
	if c.Port == 0 {
		c.Port = DefaultControllerPort
	}
	if c.Username == "" {
		c.Username = DefaultControllerUsername
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.Name == "" {
		c.Name = c.ID
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NHCBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("NHCBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("NHCBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NHCBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("NHCBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("NHCBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Controllers - tokens should never live in the config file
	for i := range cfg.Controllers {
		c := &cfg.Controllers[i]
		prefix := "NHCBRIDGE_CONTROLLER_" + envKey(c.ID) + "_"
		if v := os.Getenv(prefix + "HOST"); v != "" {
			c.Host = v
		}
		if v := os.Getenv(prefix + "TOKEN"); v != "" {
			c.Token = v
		}
	}
}

// envKey converts a controller ID to its environment variable form.
func envKey(id string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id))
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Controller validation
	if len(c.Controllers) == 0 {
		errs = append(errs, "at least one controller is required")
	}
	seen := make(map[string]bool, len(c.Controllers))
	for i := range c.Controllers {
		ctrl := &c.Controllers[i]
		label := fmt.Sprintf("controllers[%d]", i)
		if ctrl.ID != "" {
			label = fmt.Sprintf("controllers[%s]", ctrl.ID)
		}

		if ctrl.ID == "" {
			errs = append(errs, label+".id is required")
		} else if seen[ctrl.ID] {
			errs = append(errs, label+".id is duplicated")
		}
		seen[ctrl.ID] = true

		for _, e := range ctrl.validate() {
			errs = append(errs, label+"."+e)
		}
	}

	// Availability validation
	if c.Availability.Enabled && c.Availability.Interval <= 0 {
		errs = append(errs, "availability.interval must be positive")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.Retention < 0 {
		errs = append(errs, "database.retention must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// validate returns field-level problems of one controller entry.
func (c *ControllerConfig) validate() []string {
	var errs []string

	switch {
	case c.Host == "":
		errs = append(errs, "host is required")
	case net.ParseIP(c.Host) == nil && !hostnamePattern.MatchString(c.Host):
		errs = append(errs, "host must be an IP address or hostname")
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Username == "" {
		errs = append(errs, "username is required")
	}

	if c.Token == "" {
		errs = append(errs, "token is required (set NHCBRIDGE_CONTROLLER_"+envKey(c.ID)+"_TOKEN)")
	} else if _, _, err := jwt.NewParser().ParseUnverified(c.Token, jwt.MapClaims{}); err != nil {
		errs = append(errs, "token is not a valid JWT")
	}

	if c.ReconnectInterval <= 0 || c.ConnectTimeout <= 0 || c.RefreshInterval <= 0 || c.BatchDelay <= 0 {
		errs = append(errs, "intervals must be positive")
	}

	return errs
}

// Addr returns host:port of the controller.
func (c *ControllerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
