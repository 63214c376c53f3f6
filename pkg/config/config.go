package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. EZCD_SERVER_WORKERS.
const EnvPrefix = "EZCD"

// Config represents the daemon configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	NVRAM   NVRAMConfig   `yaml:"nvram" envconfig:"NVRAM"`
	SOAP    SOAPConfig    `yaml:"soap" envconfig:"SOAP"`
	Admin   AdminConfig   `yaml:"admin" envconfig:"ADMIN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains the protocol server (master/worker) configuration
type ServerConfig struct {
	Listeners         []ListenerConfig `yaml:"listeners" ignored:"true"`
	Workers           int              `yaml:"workers" envconfig:"WORKERS"`
	QueueSize         int              `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	ReadTimeout       int              `yaml:"read_timeout" envconfig:"READ_TIMEOUT"` // seconds
	RequestBufferSize int              `yaml:"request_buffer_size" envconfig:"REQUEST_BUFFER_SIZE"`
	ErrorBufferSize   int              `yaml:"error_buffer_size" envconfig:"ERROR_BUFFER_SIZE"`
	AcceptRate        float64          `yaml:"accept_rate" envconfig:"ACCEPT_RATE"` // connections per second, 0 disables
	AcceptBurst       int              `yaml:"accept_burst" envconfig:"ACCEPT_BURST"`
}

// ListenerConfig describes one listening socket and the protocol spoken on it
type ListenerConfig struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // http, soap-http, igrs
	Network  string `yaml:"network"`  // tcp, tcp4, tcp6, unix
	Address  string `yaml:"address"`
}

// NVRAMConfig contains configuration store backend settings
type NVRAMConfig struct {
	Type            string        `yaml:"type" envconfig:"TYPE"` // memory, redis, mongodb
	TotalSpace      int           `yaml:"total_space" envconfig:"TOTAL_SPACE"`
	DefaultsFile    string        `yaml:"defaults_file" envconfig:"DEFAULTS_FILE"`
	DefaultsPattern string        `yaml:"defaults_pattern" envconfig:"DEFAULTS_PATTERN"`
	Memory          MemoryConfig  `yaml:"memory" envconfig:"MEMORY"`
	Redis           RedisConfig   `yaml:"redis" envconfig:"REDIS"`
	MongoDB         MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MemoryConfig contains memory backend configuration
type MemoryConfig struct {
	// Path is the commit file. Empty keeps the store purely in memory.
	Path string `yaml:"path" envconfig:"PATH"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// SOAPConfig contains SOAP document limits
type SOAPConfig struct {
	MaxElements int `yaml:"max_elements" envconfig:"MAX_ELEMENTS"`
}

// AdminConfig contains the admin/metrics HTTP server configuration
type AdminConfig struct {
	Enabled     bool     `yaml:"enabled" envconfig:"ENABLED"`
	Host        string   `yaml:"host" envconfig:"HOST"`
	Port        int      `yaml:"port" envconfig:"PORT"`
	Token       string   `yaml:"token" envconfig:"TOKEN"` // bearer token for /admin, generated when empty
	CORSOrigins []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	RateLimit   int      `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests per minute per client, 0 disables
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listeners: []ListenerConfig{
				{Name: "soap-http", Protocol: "soap-http", Network: "tcp", Address: "0.0.0.0:8880"},
			},
			Workers:           8,
			QueueSize:         32,
			ReadTimeout:       10,
			RequestBufferSize: 16384,
			ErrorBufferSize:   4096,
			AcceptRate:        0,
			AcceptBurst:       16,
		},
		NVRAM: NVRAMConfig{
			Type:       "memory",
			TotalSpace: 65536,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "ezcd:nvram:",
			},
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "ezcd",
				Timeout:  10,
			},
		},
		SOAP: SOAPConfig{
			MaxElements: 128,
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8881,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", c.Server.Workers)
	}

	if c.Server.QueueSize < 0 {
		return fmt.Errorf("invalid queue size: %d", c.Server.QueueSize)
	}

	if c.Server.RequestBufferSize < 256 {
		return fmt.Errorf("request buffer too small: %d", c.Server.RequestBufferSize)
	}

	if c.Server.ErrorBufferSize < 64 {
		return fmt.Errorf("error buffer too small: %d", c.Server.ErrorBufferSize)
	}

	if c.Server.AcceptRate < 0 {
		return fmt.Errorf("invalid accept rate: %v", c.Server.AcceptRate)
	}

	for i, l := range c.Server.Listeners {
		switch l.Protocol {
		case "http", "soap-http", "igrs":
		default:
			return fmt.Errorf("listener %d: invalid protocol %q (must be http, soap-http, or igrs)", i, l.Protocol)
		}
		switch l.Network {
		case "tcp", "tcp4", "tcp6", "unix":
		default:
			return fmt.Errorf("listener %d: invalid network %q", i, l.Network)
		}
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
	}

	switch c.NVRAM.Type {
	case "memory", "redis", "mongodb":
	default:
		return fmt.Errorf("invalid nvram type: %s (must be memory, redis, or mongodb)", c.NVRAM.Type)
	}

	if c.NVRAM.TotalSpace <= 0 {
		return fmt.Errorf("invalid nvram total space: %d", c.NVRAM.TotalSpace)
	}

	if c.NVRAM.Type == "mongodb" && c.NVRAM.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb nvram")
	}

	if c.NVRAM.Type == "redis" && c.NVRAM.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using redis nvram")
	}

	if c.SOAP.MaxElements < 8 {
		return fmt.Errorf("soap max elements too small: %d", c.SOAP.MaxElements)
	}

	if c.Admin.Enabled && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	return nil
}

// ReadTimeoutDuration returns the per-connection read timeout
func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// Address returns the admin server address
func (c *AdminConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
