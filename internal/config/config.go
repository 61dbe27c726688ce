package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Extractor ExtractorConfig `yaml:"extractor" envconfig:"EXTRACTOR"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// AdminConfig holds the key-issuance credential.
type AdminConfig struct {
	Password string `yaml:"password" envconfig:"PASSWORD"`
}

// StoreConfig identifies the remote binding store and its access mode.
type StoreConfig struct {
	Repo         string        `yaml:"repo" envconfig:"REPO"`
	// The envconfig name avoids the tag PATH, which envconfig would
	// fall back to reading from the bare $PATH variable.
	Path         string        `yaml:"path" envconfig:"FILE_PATH"`
	Branch       string        `yaml:"branch" envconfig:"BRANCH"`
	Token        string        `yaml:"token" envconfig:"TOKEN"`
	// TokenEncrypted carries the token as an AES-GCM blob; it is decrypted
	// with TokenPassphrase at startup and wins over Token when set.
	TokenEncrypted  string        `yaml:"token_encrypted" envconfig:"TOKEN_ENCRYPTED"`
	TokenPassphrase string        `yaml:"token_passphrase" envconfig:"TOKEN_PASSPHRASE"`
	UseRawMirror    bool          `yaml:"use_raw_mirror" envconfig:"USE_RAW_MIRROR"`
	WriteRetries    int           `yaml:"write_retries" envconfig:"WRITE_RETRIES"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ExtractorConfig tunes the note page fetch.
type ExtractorConfig struct {
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// TelemetryConfig toggles the metrics pipeline.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// Load loads configuration from environment variables (prefix NOTEGATE),
// layered over an optional YAML config file.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables take precedence over the file.
	if err := envconfig.Process("NOTEGATE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Admin.Password == "" {
		return fmt.Errorf("admin password must be configured")
	}
	if c.Store.Repo == "" || !strings.Contains(c.Store.Repo, "/") {
		return fmt.Errorf("store repo must be in owner/name form, got %q", c.Store.Repo)
	}
	if c.Store.Token == "" && c.Store.TokenEncrypted == "" {
		return fmt.Errorf("store token must be configured")
	}
	if c.Store.TokenEncrypted != "" && c.Store.TokenPassphrase == "" {
		return fmt.Errorf("store token passphrase required with encrypted token")
	}
	if c.Store.WriteRetries < 0 {
		return fmt.Errorf("store write retries must not be negative")
	}
	return nil
}

func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the default configuration. The admin password, store repo
// and token have no defaults and must come from the environment or file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Path:         "bindings.txt",
			Branch:       "main",
			UseRawMirror: true,
			WriteRetries: 3,
			Timeout:      10 * time.Second,
		},
		Extractor: ExtractorConfig{
			Timeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/app.log",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   10,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}
