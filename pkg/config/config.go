// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Hits, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Hits      HitsConfig      `yaml:"hits"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// IndexerConfig controls the indexing engine's memory threshold, flush
// interval, sharding and whether searchers watch for new segments.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	NumShards      int           `yaml:"numShards"`
	WatchSegments  bool          `yaml:"watchSegments"`
}

// SearchConfig controls the hits API window sizes, timeouts and per-client
// rate limits.
type SearchConfig struct {
	MaxResults           int           `yaml:"maxResults"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxConcurrentQueries int           `yaml:"maxConcurrentQueries"`
	RateLimit            float64       `yaml:"rateLimit"`
	RateBurst            int           `yaml:"rateBurst"`
}

// HitsConfig bounds how many hits a query stores (MaxHitsToProcess) and
// counts (MaxHitsToCount), and how much parallelism fetch, sort and group may
// use. A limit of -1 means unlimited.
type HitsConfig struct {
	MaxHitsToProcess       int64         `yaml:"maxHitsToProcess"`
	MaxHitsToCount         int64         `yaml:"maxHitsToCount"`
	MaxThreadsPerOperation int           `yaml:"maxThreadsPerOperation"`
	FetchThreads           int           `yaml:"fetchThreads"`
	GroupThreads           int           `yaml:"groupThreads"`
	PoolSize               int           `yaml:"poolSize"`
	SingleThreadThreshold  int64         `yaml:"singleThreadThreshold"`
	PollInterval           time.Duration `yaml:"pollInterval"`
	FetchBatchMin          int64         `yaml:"fetchBatchMin"`
	MaxGroups              int           `yaml:"maxGroups"`
	MaxStoredPerGroup      int64         `yaml:"maxStoredPerGroup"`
	CollationLocale        string        `yaml:"collationLocale"`
	CaseSensitive          bool          `yaml:"caseSensitive"`
}

// ProcessLimit returns MaxHitsToProcess with -1 mapped to math.MaxInt64.
func (h HitsConfig) ProcessLimit() int64 {
	return unlimited(h.MaxHitsToProcess)
}

// CountLimit returns MaxHitsToCount with -1 mapped to math.MaxInt64.
func (h HitsConfig) CountLimit() int64 {
	return unlimited(h.MaxHitsToCount)
}

// Threads returns the number of workers an operation may use, never below 1.
func (h HitsConfig) Threads(ideal int) int {
	n := h.MaxThreadsPerOperation
	if ideal > 0 && ideal < n {
		n = ideal
	}
	if n < 1 {
		n = 1
	}
	return n
}

func unlimited(v int64) int64 {
	if v < 0 {
		return math.MaxInt64
	}
	return v
}

// AnalyticsConfig controls event buffering and snapshot persistence.
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls which query span trees are logged.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the hits core cannot run with.
func (c *Config) Validate() error {
	h := c.Hits
	if h.MaxHitsToProcess < -1 || h.MaxHitsToCount < -1 {
		return fmt.Errorf("hits limits must be -1 or non-negative (process=%d, count=%d)", h.MaxHitsToProcess, h.MaxHitsToCount)
	}
	if h.MaxThreadsPerOperation < 1 || h.FetchThreads < 1 || h.GroupThreads < 1 {
		return fmt.Errorf("hits thread counts must be at least 1")
	}
	if h.PollInterval <= 0 {
		return fmt.Errorf("hits pollInterval must be positive, got %v", h.PollInterval)
	}
	if h.MaxGroups < 1 {
		return fmt.Errorf("hits maxGroups must be at least 1, got %d", h.MaxGroups)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sampleRate must be within [0, 1], got %v", c.Tracing.SampleRate)
	}
	if c.Indexer.NumShards < 1 {
		return fmt.Errorf("indexer numShards must be at least 1, got %d", c.Indexer.NumShards)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
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
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchplatform-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			OpTimeout: 150 * time.Millisecond,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			SegmentMaxSize: 64 << 20,
			FlushInterval:  30 * time.Second,
			NumShards:      4,
		},
		Search: SearchConfig{
			MaxResults:           1000,
			DefaultLimit:         20,
			Timeout:              30 * time.Second,
			MaxConcurrentQueries: 64,
			RateLimit:            50,
			RateBurst:            100,
		},
		Hits: HitsConfig{
			MaxHitsToProcess:       5_000_000,
			MaxHitsToCount:         10_000_000,
			MaxThreadsPerOperation: 4,
			FetchThreads:           4,
			GroupThreads:           3,
			PoolSize:               16,
			SingleThreadThreshold:  100,
			PollInterval:           50 * time.Millisecond,
			FetchBatchMin:          20,
			MaxGroups:              1_000_000,
			MaxStoredPerGroup:      10,
			CollationLocale:        "en",
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_TRACING_SAMPLE_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRate = r
		}
	}
	if v := os.Getenv("SP_HITS_MAX_PROCESS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Hits.MaxHitsToProcess = n
		}
	}
	if v := os.Getenv("SP_HITS_MAX_COUNT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Hits.MaxHitsToCount = n
		}
	}
	if v := os.Getenv("SP_HITS_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Hits.MaxThreadsPerOperation = n
		}
	}
}
