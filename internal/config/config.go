package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Download DownloadConfig `yaml:"download"`
	Network  NetworkConfig  `yaml:"network"`
	Batch    BatchConfig    `yaml:"batch"`
}

// ServerConfig holds HTTP server configuration for the web front-end.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// GeminiConfig holds transcription service configuration.
type GeminiConfig struct {
	APIKey            string        `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model             string        `yaml:"model" envconfig:"GEMINI_MODEL"`
	MaxUploadSize     int64         `yaml:"max_upload_size" envconfig:"GEMINI_MAX_UPLOAD_SIZE"`
	PollInterval      time.Duration `yaml:"poll_interval" envconfig:"GEMINI_POLL_INTERVAL"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" envconfig:"GEMINI_PROCESSING_TIMEOUT"`
	UploadTimeout     time.Duration `yaml:"upload_timeout" envconfig:"GEMINI_UPLOAD_TIMEOUT"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout" envconfig:"GEMINI_GENERATE_TIMEOUT"`
	CleanupTimeout    time.Duration `yaml:"cleanup_timeout" envconfig:"GEMINI_CLEANUP_TIMEOUT"`
}

// DownloadConfig holds video download configuration.
type DownloadConfig struct {
	YtdlpPath   string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH"`
	TempPath    string        `yaml:"temp_path" envconfig:"DOWNLOAD_TEMP_PATH"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	MaxFileSize int64         `yaml:"max_file_size" envconfig:"DOWNLOAD_MAX_FILE_SIZE"`
}

// NetworkConfig holds connectivity probe configuration.
type NetworkConfig struct {
	ProbeAddress string        `yaml:"probe_address" envconfig:"NETWORK_PROBE_ADDRESS"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"NETWORK_PROBE_TIMEOUT"`
}

// BatchConfig holds batch pacing configuration.
type BatchConfig struct {
	Delay time.Duration `yaml:"delay" envconfig:"BATCH_DELAY"`
}

// Defaults.
const (
	DefaultModel             = "gemini-2.5-flash"
	DefaultMaxUploadSize     = 20 * 1024 * 1024
	DefaultPollInterval      = 2 * time.Second
	DefaultProcessingTimeout = 60 * time.Second
	DefaultUploadTimeout     = 2 * time.Minute
	DefaultGenerateTimeout   = 2 * time.Minute
	DefaultCleanupTimeout    = 10 * time.Second
	DefaultYtdlpPath         = "yt-dlp"
	DefaultDownloadTimeout   = 60 * time.Second
	DefaultMaxFileSize       = 200 * 1024 * 1024
	DefaultProbeAddress      = "8.8.8.8:53"
	DefaultProbeTimeout      = 3 * time.Second
	DefaultBatchDelay        = 4 * time.Second
)

// Load reads configuration from the .env file, an optional YAML file and
// environment variables. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// A missing .env is fine; the key may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every unset value with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Minute
	}

	setDefault(&c.Gemini.Model, DefaultModel)
	setDefault(&c.Gemini.MaxUploadSize, DefaultMaxUploadSize)
	setDefault(&c.Gemini.PollInterval, DefaultPollInterval)
	setDefault(&c.Gemini.ProcessingTimeout, DefaultProcessingTimeout)
	setDefault(&c.Gemini.UploadTimeout, DefaultUploadTimeout)
	setDefault(&c.Gemini.GenerateTimeout, DefaultGenerateTimeout)
	setDefault(&c.Gemini.CleanupTimeout, DefaultCleanupTimeout)

	setDefault(&c.Download.YtdlpPath, DefaultYtdlpPath)
	setDefault(&c.Download.TempPath, os.TempDir())
	setDefault(&c.Download.Timeout, DefaultDownloadTimeout)
	setDefault(&c.Download.MaxFileSize, DefaultMaxFileSize)

	setDefault(&c.Network.ProbeAddress, DefaultProbeAddress)
	setDefault(&c.Network.ProbeTimeout, DefaultProbeTimeout)

	setDefault(&c.Batch.Delay, DefaultBatchDelay)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that configured limits are usable. The API key is not
// checked here: its absence is a pre-flight failure reported by the caller.
func (c *Config) Validate() error {
	if c.Gemini.MaxUploadSize <= 0 {
		return fmt.Errorf("GEMINI_MAX_UPLOAD_SIZE must be positive")
	}
	if c.Gemini.PollInterval <= 0 || c.Gemini.ProcessingTimeout <= 0 {
		return fmt.Errorf("GEMINI_POLL_INTERVAL and GEMINI_PROCESSING_TIMEOUT must be positive")
	}
	if c.Download.MaxFileSize <= 0 {
		return fmt.Errorf("DOWNLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must be positive")
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("BATCH_DELAY must not be negative")
	}
	return nil
}

// HasAPIKey reports whether a Gemini API key is configured.
func (c *Config) HasAPIKey() bool {
	return c.Gemini.APIKey != ""
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
