// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Redis, Stream, Publisher, Sweep, Enrichment, Postgres, Kafka, etc.).
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Redis      RedisConfig      `yaml:"redis"`
	Stream     StreamConfig     `yaml:"stream"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServiceConfig names the running process in logs and metrics.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	DB          int           `yaml:"db"`
	Password    string        `yaml:"password"`
	PoolSize    int           `yaml:"poolSize"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// StreamConfig names the shared store resources and controls consumer
// group delivery. Every producer and consumer that must interoperate has to
// agree on Ledger and Stream.
type StreamConfig struct {
	Ledger       string        `yaml:"ledger"`
	Stream       string        `yaml:"stream"`
	Group        string        `yaml:"group"`
	Consumer     string        `yaml:"consumer"`
	BatchSize    int           `yaml:"batchSize"`
	BlockTimeout time.Duration `yaml:"blockTimeout"`
	CreateStream bool          `yaml:"createStream"`
	Ack          bool          `yaml:"ack"`
}

// PublisherConfig controls publish concurrency and the retry policy applied
// to transient store failures.
type PublisherConfig struct {
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors resilience.RetryConfig in YAML form.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialDelay   time.Duration `yaml:"initialDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFraction float64       `yaml:"jitterFraction"`
}

// SweepConfig controls feed collection.
type SweepConfig struct {
	SourcesFile  string        `yaml:"sourcesFile"`
	Concurrency  int           `yaml:"concurrency"`
	ParseWorkers int           `yaml:"parseWorkers"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
}

// EnrichmentConfig configures the reputation lookup stage.
type EnrichmentConfig struct {
	AbuseIPDB AbuseIPDBConfig `yaml:"abuseIPDB"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// AbuseIPDBConfig holds the reputation API endpoint and credentials.
type AbuseIPDBConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"apiKey"`
	MaxAgeInDays int           `yaml:"maxAgeInDays"`
	Timeout      time.Duration `yaml:"timeout"`
}

// BreakerConfig holds circuit breaker thresholds for the reputation API.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. Enabled turns on
// persistence of enrichment reports.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds the broker list and the topic enriched reports are
// published to.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ReportsTopic  string        `yaml:"reportsTopic"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level, output format and the
// optional rotating log directory.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the stream components cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Stream.Ledger == "" || c.Stream.Stream == "":
		return fmt.Errorf("%w: stream.ledger and stream.stream are required", apperrors.ErrInvalidConfig)
	case c.Stream.BatchSize <= 0:
		return fmt.Errorf("%w: stream.batchSize must be positive, got %d", apperrors.ErrInvalidConfig, c.Stream.BatchSize)
	case c.Stream.BlockTimeout <= 0:
		return fmt.Errorf("%w: stream.blockTimeout must be positive, got %s", apperrors.ErrInvalidConfig, c.Stream.BlockTimeout)
	case c.Publisher.Concurrency <= 0:
		return fmt.Errorf("%w: publisher.concurrency must be positive, got %d", apperrors.ErrInvalidConfig, c.Publisher.Concurrency)
	case c.Sweep.Concurrency <= 0:
		return fmt.Errorf("%w: sweep.concurrency must be positive, got %d", apperrors.ErrInvalidConfig, c.Sweep.Concurrency)
	}
	return nil
}

// DefaultServiceName is the service name used when none is configured.
const DefaultServiceName = "attack-radar"

// defaultConfig returns a Config with defaults for local development. The
// resource names match the ones every deployed producer and consumer uses.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{Name: DefaultServiceName},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		Stream: StreamConfig{
			Ledger:       "signal-stream-set",
			Stream:       "signal-stream",
			Group:        "signal-forge",
			Consumer:     "signal-processor",
			BatchSize:    10,
			BlockTimeout: time.Second,
			Ack:          true,
		},
		Publisher: PublisherConfig{
			Concurrency: 50,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialDelay:   100 * time.Millisecond,
				MaxDelay:       2 * time.Second,
				Multiplier:     2.0,
				JitterFraction: 0.1,
			},
		},
		Sweep: SweepConfig{
			SourcesFile:  "configs/sources.yaml",
			Concurrency:  5,
			ParseWorkers: 4,
			HTTPTimeout:  30 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			AbuseIPDB: AbuseIPDBConfig{
				URL:          "https://api.abuseipdb.com/api/v2/check",
				MaxAgeInDays: 90,
				Timeout:      10 * time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "attackradar",
			User:            "attackradar",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ReportsTopic:  "ip-reports",
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads the deployment's environment variables and
// overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		cfg.Service.Name = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if err := envInt("REDIS_PORT", &cfg.Redis.Port); err != nil {
		return err
	}
	if err := envInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SOURCES_FILE"); v != "" {
		cfg.Sweep.SourcesFile = v
	}
	if v := os.Getenv("IPDB_API_KEY"); v != "" {
		cfg.Enrichment.AbuseIPDB.APIKey = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if err := envInt("POSTGRES_PORT", &cfg.Postgres.Port); err != nil {
		return err
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if err := envInt("METRICS_PORT", &cfg.Metrics.Port); err != nil {
		return err
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", apperrors.ErrInvalidConfig, name, v)
	}
	*dst = n
	return nil
}
