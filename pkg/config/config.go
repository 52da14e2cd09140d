// Package config reads service configuration from a YAML file, fills the
// gaps with defaults, and lets QM_* environment variables override both.
// All services share one Config shape; each reads the sections it cares
// about.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of every service's configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Registry RegistryConfig `yaml:"registry"`
	Scan     ScanConfig     `yaml:"scan"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener settings shared by every service.
// Services running on one host differ only in QM_SERVER_PORT.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig carries connection and pool settings for PostgreSQL.
type PostgresConfig struct {
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

// DSN renders the connection string lib/pq expects.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig names the brokers, the consumer group, and the topics the
// platform publishes on.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics pins the topic names both producers and consumers use, so
// a rename cannot split them.
type KafkaTopics struct {
	PatternIngest   string `yaml:"patternIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection parameters and the scan cache TTL.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RegistryConfig controls the compiled-pattern registry: how many shards
// patterns are partitioned into, where snapshot files live, how often shards
// are snapshotted, how often the scanner re-checks them, and the admin RPC
// port. NumShards must agree across the ingestion, registry, and scanner
// services.
type RegistryConfig struct {
	NumShards        int           `yaml:"numShards"`
	SnapshotDir      string        `yaml:"snapshotDir"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	ReloadInterval   time.Duration `yaml:"reloadInterval"`
	RPCPort          int           `yaml:"rpcPort"`
}

// ScanConfig bounds a single scan request: result limits, accepted text
// size, and the per-shard matching deadline.
type ScanConfig struct {
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxLimit        int           `yaml:"maxLimit"`
	MaxTextBytes    int           `yaml:"maxTextBytes"`
	TimeoutPerShard time.Duration `yaml:"timeoutPerShard"`
}

// LoggingConfig selects the log level and output format (json or text).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls in-process span recording.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GatewayConfig holds the API gateway port and the upstream addresses it
// proxies to.
type GatewayConfig struct {
	Port         int    `yaml:"port"`
	IngestionURL string `yaml:"ingestionUrl"`
	ScannerURL   string `yaml:"scannerUrl"`
	AnalyticsURL string `yaml:"analyticsUrl"`
	RegistryRPC  string `yaml:"registryRpc"`
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (when non-empty), overlaid by QM_* environment variables.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// validate rejects settings no service can run with. Most fields have
// workable defaults, so only cross-cutting mistakes are checked here.
func (c *Config) validate() error {
	if c.Registry.NumShards < 1 {
		return fmt.Errorf("registry.numShards must be at least 1, got %d", c.Registry.NumShards)
	}
	if c.Scan.MaxLimit < c.Scan.DefaultLimit {
		return fmt.Errorf("scan.maxLimit (%d) is below scan.defaultLimit (%d)",
			c.Scan.MaxLimit, c.Scan.DefaultLimit)
	}
	if c.Scan.MaxTextBytes < 1 {
		return fmt.Errorf("scan.maxTextBytes must be positive, got %d", c.Scan.MaxTextBytes)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "quotematch",
			User:            "quotematch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "quotematch-group",
			Topics: KafkaTopics{
				PatternIngest:   "pattern-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Registry: RegistryConfig{
			NumShards:        8,
			SnapshotDir:      "./data/registry",
			SnapshotInterval: 30 * time.Second,
			ReloadInterval:   10 * time.Second,
			RPCPort:          7090,
		},
		Scan: ScanConfig{
			DefaultLimit:    10,
			MaxLimit:        100,
			MaxTextBytes:    1 << 20,
			TimeoutPerShard: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Gateway: GatewayConfig{
			Port:         8082,
			IngestionURL: "http://localhost:8081",
			ScannerURL:   "http://localhost:8080",
			AnalyticsURL: "http://localhost:8083",
			RegistryRPC:  "localhost:7090",
		},
	}
}

// applyEnvOverrides lets QM_* variables take precedence over file values,
// so one YAML file can be shared across services with only the per-instance
// settings varied.
func applyEnvOverrides(cfg *Config) {
	envInt("QM_SERVER_PORT", &cfg.Server.Port)

	envString("QM_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("QM_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("QM_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("QM_POSTGRES_USER", &cfg.Postgres.User)
	envString("QM_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("QM_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	envList("QM_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	envString("QM_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)

	envString("QM_REDIS_ADDR", &cfg.Redis.Addr)
	envString("QM_REDIS_PASSWORD", &cfg.Redis.Password)

	envInt("QM_REGISTRY_NUM_SHARDS", &cfg.Registry.NumShards)
	envString("QM_REGISTRY_SNAPSHOT_DIR", &cfg.Registry.SnapshotDir)
	envInt("QM_REGISTRY_RPC_PORT", &cfg.Registry.RPCPort)

	envString("QM_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("QM_LOGGING_FORMAT", &cfg.Logging.Format)
	envInt("QM_METRICS_PORT", &cfg.Metrics.Port)

	envInt("QM_GATEWAY_PORT", &cfg.Gateway.Port)
	envString("QM_GATEWAY_INGESTION_URL", &cfg.Gateway.IngestionURL)
	envString("QM_GATEWAY_SCANNER_URL", &cfg.Gateway.ScannerURL)
	envString("QM_GATEWAY_ANALYTICS_URL", &cfg.Gateway.AnalyticsURL)
	envString("QM_GATEWAY_REGISTRY_RPC", &cfg.Gateway.RegistryRPC)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envList(name string, dst *[]string) {
	if v := os.Getenv(name); v != "" {
		*dst = strings.Split(v, ",")
	}
}
