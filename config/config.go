package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is the bind address used when none is configured.
	DefaultListen = ":8080"

	// DefaultMaxRequestSize caps proxied request bodies when a proxy target
	// does not configure max_request_size (1MB).
	DefaultMaxRequestSize int64 = 1 * 1024 * 1024

	// DefaultSessionCookieName is the name of the session cookie.
	DefaultSessionCookieName = "gateway.sess"

	// DefaultSessionMaxAge is the lifetime of a session cookie and its stored values.
	DefaultSessionMaxAge = 24 * time.Hour
)

// Target type tags.
const (
	TypeProxy  = "proxy"
	TypeFile   = "file"
	TypeStatic = "static"
)

// HTTPTransportConfig holds the configuration settings for the HTTP transport.
//
// Fields:
// - IdleConnTimeout: The maximum amount of time an idle (keep-alive) connection will remain idle before closing.
// - MaxIdleConns: The maximum number of idle (keep-alive) connections across all hosts.
// - MaxIdleConnsPerHost: The maximum number of idle (keep-alive) connections to keep per-host.
// - MaxConnsPerHost: The maximum number of connections per host.
// - TLSHandshakeTimeout: The maximum amount of time allowed for the TLS handshake.
// - ResponseHeaderTimeout: The maximum amount of time to wait for an upstream's response headers.
// - ExpectContinueTimeout: The maximum amount of time to wait for a 100-continue response.
// - DisableCompression: Whether to disable transparent gzip on upstream requests.
// - ForceHTTP2: Whether to attempt HTTP/2 to the upstream.
// - DialTimeout: The maximum amount of time to wait for a dial to complete.
// - KeepAlive: The interval between keep-alive probes for an active network connection.
// - CertFile, KeyFile: Client certificate presented to the upstream.
// - CaFile: CA bundle used to verify the upstream certificate.
type HTTPTransportConfig struct {
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout"`
	DisableCompression    bool          `yaml:"disable_compression"`
	ForceHTTP2            bool          `yaml:"force_http2"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	KeepAlive             time.Duration `yaml:"keep_alive"`
	CertFile              string        `yaml:"cert_file"`
	KeyFile               string        `yaml:"key_file"`
	CaFile                string        `yaml:"ca_file"`
}

// TransportConfig wraps HTTP transport configuration
type TransportConfig struct {
	HTTP HTTPTransportConfig `yaml:"http"`
}

// MetricsConfig holds the configuration for the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enables/disables the metrics endpoint.
	Path    string `yaml:"path"`    // Path the metrics endpoint will respond to.
}

// Logging holds the configuration for logging.
type Logging struct {
	Enabled bool   `yaml:"enabled"` // Enables/disables access logging.
	Verbose bool   `yaml:"verbose"` // Enables/disables verbose request dumps.
	Level   string `yaml:"level"`   // Log level (e.g., debug, info, warn, error).
}

// RedisConfig holds the connection settings of the Redis session store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig holds the configuration for the gateway.
type GatewayConfig struct {
	Listen    string          `yaml:"listen"`    // Bind address shared by all targets.
	Logging   Logging         `yaml:"logging"`   // Logging configuration.
	Metrics   MetricsConfig   `yaml:"metrics"`   // Metrics configuration.
	Redis     RedisConfig     `yaml:"redis"`     // Redis connection used by the session store.
	Session   SessionConfig   `yaml:"session"`   // Session support, `true` or a mapping.
	Transport TransportConfig `yaml:"transport"` // Default upstream transport.
	Targets   []TargetConfig  `yaml:"targets"`   // Ordered targets; the first match wins.
}

// LoadConfiguration loads the gateway configuration from a YAML file.
//
// Parameters:
// - file: The path to the configuration file.
//
// Returns:
// - *GatewayConfig: A pointer to the loaded GatewayConfig.
// - error: An error if the configuration could not be loaded or is invalid.
func LoadConfiguration(file string) (*GatewayConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration document.
//
// Parameters:
// - data: The YAML document.
//
// Returns:
// - *GatewayConfig: The validated configuration with defaults applied.
// - error: Any decoding or validation error.
func Parse(data []byte) (*GatewayConfig, error) {
	var config GatewayConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if err := Prepare(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Prepare validates a configuration, applies defaults and compiles the match
// pattern of every target. Configurations built in code must go through it
// before they are handed to the gateway.
//
// Parameters:
// - config: The configuration to prepare in place.
//
// Returns:
// - error: Any validation error.
func Prepare(config *GatewayConfig) error {
	if err := validateAndSetDefaults(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	for i := range config.Targets {
		if err := config.Targets[i].CompilePattern(); err != nil {
			return fmt.Errorf("target %d (%s): %w", i, config.Targets[i].Type, err)
		}
	}
	return nil
}

// validateAndSetDefaults validates the configuration and sets default values where needed.
func validateAndSetDefaults(config *GatewayConfig) error {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	// Set default metrics path if enabled but path not specified
	if config.Metrics.Enabled && config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}

	if err := validateTransport(config.Transport.HTTP); err != nil {
		return err
	}

	if config.Session.Enabled {
		if config.Session.CookieName == "" {
			config.Session.CookieName = DefaultSessionCookieName
		}
		if config.Session.MaxAge == 0 {
			config.Session.MaxAge = DefaultSessionMaxAge
		}
		if config.Session.MaxAge < 0 {
			return fmt.Errorf("session.max_age cannot be negative")
		}
		if len(config.Session.Keys) == 0 {
			return fmt.Errorf("session.keys is required when sessions are enabled")
		}
		switch config.Session.Store {
		case "":
			config.Session.Store = StoreMemory
		case StoreMemory:
		case StoreRedis:
			if !config.Redis.Enabled {
				return fmt.Errorf("session.store %q requires redis.enabled", StoreRedis)
			}
		default:
			return fmt.Errorf("unknown session.store %q", config.Session.Store)
		}
	}

	if len(config.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	for i := range config.Targets {
		if err := config.Targets[i].validateAndSetDefaults(config); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
		if config.Targets[i].Name == "" {
			config.Targets[i].Name = fmt.Sprintf("%s-%d", config.Targets[i].Type, i)
		}
	}

	return nil
}

func validateTransport(http HTTPTransportConfig) error {
	// Validate transport timeouts are positive
	if http.IdleConnTimeout < 0 ||
		http.TLSHandshakeTimeout < 0 ||
		http.ResponseHeaderTimeout < 0 ||
		http.ExpectContinueTimeout < 0 ||
		http.DialTimeout < 0 ||
		http.KeepAlive < 0 {
		return fmt.Errorf("transport timeouts must be non-negative")
	}
	return nil
}

// ApplyLogging routes the standard library logger according to the logging configuration.
//
// Parameters:
// - config: The configuration whose logging section is applied.
func ApplyLogging(config *GatewayConfig) {
	if !config.Logging.Enabled {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stdout)
	}
}
