package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Queue    QueueConfig    `yaml:"queue"`
	Live     LiveConfig     `yaml:"live"`
	Rating   RatingConfig   `yaml:"rating"`
	Stats    StatsConfig    `yaml:"stats"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret             string        `yaml:"jwt_secret"`
	TokenDuration         time.Duration `yaml:"token_duration"`
	OperatorTokenDuration time.Duration `yaml:"operator_token_duration"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
	StaticDir  string `yaml:"static_dir"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig controls job dispatch and the worker pool
type QueueConfig struct {
	NATSURL        string        `yaml:"nats_url"`
	Embedded       bool          `yaml:"embedded"`
	StoreDir       string        `yaml:"store_dir"`
	Stream         string        `yaml:"stream"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// LiveConfig holds live session broadcast settings
type LiveConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
}

// RatingConfig holds Elo parameters
type RatingConfig struct {
	KFactor    float64 `yaml:"k_factor"`
	BaseRating int     `yaml:"base_rating"`
	MaxMargin  int     `yaml:"max_margin"`
}

// StatsConfig holds stats reconciler settings
type StatsConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// OutboxConfig holds outbox relay settings
type OutboxConfig struct {
	RelayInterval time.Duration `yaml:"relay_interval"`
}

// MetricsConfig controls telemetry export
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddr   string `yaml:"listen_addr"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file. A .env file in the working
// directory is loaded first so FOOSPULSE_* variables can override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills zero values with their defaults
func (c *Config) SetDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/foospulse/foospulse.db"
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files

	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
	if c.Auth.OperatorTokenDuration == 0 {
		c.Auth.OperatorTokenDuration = time.Hour
	}

	if c.Queue.NATSURL == "" {
		c.Queue.Embedded = true
	}
	if c.Queue.StoreDir == "" {
		c.Queue.StoreDir = "/var/lib/foospulse/jetstream"
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = "FOOSPULSE_JOBS"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 5
	}
	if c.Queue.InitialBackoff == 0 {
		c.Queue.InitialBackoff = time.Second
	}
	if c.Queue.MaxBackoff == 0 {
		c.Queue.MaxBackoff = 32 * time.Second
	}

	if c.Live.HeartbeatInterval == 0 {
		c.Live.HeartbeatInterval = 30 * time.Second
	}
	if c.Live.SubscriberBuffer == 0 {
		c.Live.SubscriberBuffer = 64
	}

	if c.Rating.KFactor == 0 {
		c.Rating.KFactor = 32
	}
	if c.Rating.BaseRating == 0 {
		c.Rating.BaseRating = 1200
	}
	if c.Rating.MaxMargin == 0 {
		c.Rating.MaxMargin = 10
	}

	if c.Stats.ReconcileInterval == 0 {
		c.Stats.ReconcileInterval = 15 * time.Minute
	}
	if c.Outbox.RelayInterval == 0 {
		c.Outbox.RelayInterval = 10 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9090"
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = "foospulse"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Queue.Workers < 0 {
		errs = append(errs, errors.New("queue.workers must be positive"))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.max_attempts must be at least 1"))
	}
	if c.Queue.InitialBackoff < 0 || c.Queue.MaxBackoff < c.Queue.InitialBackoff {
		errs = append(errs, errors.New("queue backoff must satisfy 0 <= initial_backoff <= max_backoff"))
	}
	if c.Live.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("live.heartbeat_interval must be positive"))
	}
	if c.Live.SubscriberBuffer < 0 {
		errs = append(errs, errors.New("live.subscriber_buffer must be positive"))
	}
	if c.Rating.KFactor < 0 || c.Rating.MaxMargin < 0 {
		errs = append(errs, errors.New("rating.k_factor and rating.max_margin must be positive"))
	}
	if c.Stats.ReconcileInterval < 0 || c.Outbox.RelayInterval < 0 {
		errs = append(errs, errors.New("scheduler intervals must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.HTTPPort)
}
