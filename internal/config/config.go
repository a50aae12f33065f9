package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Browser   BrowserConfig   `yaml:"browser"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Download  DownloadConfig  `yaml:"download"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"2m"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	MediaPath       string `yaml:"media_path" envconfig:"MEDIA_PATH" default:"/data/media"`
	DatabasePath    string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"/data/xstash.db"`
	DiagnosticsPath string `yaml:"diagnostics_path" envconfig:"DIAGNOSTICS_PATH" default:"/data/logs/save_failures.log"`
	MaxDiagnostics  int    `yaml:"max_diagnostics" envconfig:"MAX_DIAGNOSTICS" default:"1000"`
	MinFreeBytes    uint64 `yaml:"min_free_bytes" envconfig:"MIN_FREE_BYTES" default:"104857600"` // 100MB
}

// ResolverConfig holds remote lookup endpoints.
type ResolverConfig struct {
	APIBaseURL     string        `yaml:"api_base_url" envconfig:"RESOLVER_API_BASE_URL" default:"https://api.fxtwitter.com"`
	SyndicationURL string        `yaml:"syndication_url" envconfig:"RESOLVER_SYNDICATION_URL" default:"https://cdn.syndication.twimg.com/tweet-result"`
	MirrorBaseURL  string        `yaml:"mirror_base_url" envconfig:"RESOLVER_MIRROR_BASE_URL" default:"https://fxtwitter.com"`
	APIUserAgent   string        `yaml:"api_user_agent" envconfig:"RESOLVER_API_USER_AGENT" default:"xstash/1.0"`
	PageUserAgent  string        `yaml:"page_user_agent" envconfig:"RESOLVER_PAGE_USER_AGENT" default:"Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"RESOLVER_TIMEOUT" default:"8s"`
}

// BrowserConfig holds headless rendering configuration.
type BrowserConfig struct {
	Enabled      bool          `yaml:"enabled" envconfig:"BROWSER_ENABLED" default:"true"`
	Bin          string        `yaml:"bin" envconfig:"CHROME_PATH"`
	// Timeout bounds page navigation and load; MaxWait bounds the polling after.
	Timeout      time.Duration `yaml:"timeout" envconfig:"BROWSER_TIMEOUT" default:"6s"`
	MaxWait      time.Duration `yaml:"max_wait" envconfig:"BROWSER_MAX_WAIT" default:"6s"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"BROWSER_POLL_INTERVAL" default:"1500ms"`
	UserAgent    string        `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
}

// IngestConfig holds share ingestion configuration.
type IngestConfig struct {
	Timeout      time.Duration `yaml:"timeout" envconfig:"INGEST_TIMEOUT" default:"30s"`
	GateLeaseTTL time.Duration `yaml:"gate_lease_ttl" envconfig:"INGEST_GATE_LEASE_TTL" default:"2m"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout     time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"2"`
	RetryDelay  time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"500ms"`
	UserAgent   string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// ReconcileConfig holds background sweep configuration.
type ReconcileConfig struct {
	Enabled   bool          `yaml:"enabled" envconfig:"RECONCILE_ENABLED" default:"true"`
	Interval  time.Duration `yaml:"interval" envconfig:"RECONCILE_INTERVAL" default:"6h"`
	ItemDelay time.Duration `yaml:"item_delay" envconfig:"RECONCILE_ITEM_DELAY" default:"300ms"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.MediaPath == "" {
		return fmt.Errorf("MEDIA_PATH is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Ingest.Timeout <= 0 {
		return fmt.Errorf("INGEST_TIMEOUT must be positive")
	}
	if c.Ingest.GateLeaseTTL < c.Ingest.Timeout {
		return fmt.Errorf("INGEST_GATE_LEASE_TTL (%s) must not be shorter than INGEST_TIMEOUT (%s)",
			c.Ingest.GateLeaseTTL, c.Ingest.Timeout)
	}
	if c.Browser.Enabled && c.Browser.PollInterval <= 0 {
		return fmt.Errorf("BROWSER_POLL_INTERVAL must be positive")
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be at least 1")
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval < time.Minute {
		return fmt.Errorf("RECONCILE_INTERVAL must be at least 1m")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
