package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"FinSignal/internal/services/regime"
	"FinSignal/pkg/postgres"
)

// Backend types.
const (
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Backend     BackendConfig    `yaml:"backend"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Postgres    postgres.Config  `yaml:"postgres"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
	Scoring     ScoringConfig    `yaml:"scoring"`
	Entities    []string         `yaml:"entities" validate:"dive,required"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" default:"true"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type BackendConfig struct {
	Type string `yaml:"type" default:"memory" validate:"oneof=clickhouse postgres memory"`
	// SeedFile loads observations into the memory backend (CSV: series_id,timestamp,value).
	SeedFile string `yaml:"seed_file"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finsignal"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	ScoreTopic  string   `yaml:"score_topic" default:"finsignal.scores"`
	HealthTopic string   `yaml:"health_topic" default:"finsignal.health"`
	Compression string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"500ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		Topic      string        `yaml:"topic" default:"finsignal.recompute"`
		GroupID    string        `yaml:"group_id" default:"finsignal"`
		Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"finsignal.recompute.dlq"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix" default:"finsignal"`
}

type ScoringConfig struct {
	ProfilesFile string `yaml:"profiles_file" default:"config/profiles.yaml" validate:"required"`
	// Profile is the default profile for jobs that do not name one.
	Profile         string        `yaml:"profile" default:"equity_technical" validate:"required"`
	Workers         int           `yaml:"workers" default:"4" validate:"min=1,max=256"`
	Lookback        time.Duration `yaml:"lookback" default:"8760h"`
	CheckpointEvery int           `yaml:"checkpoint_every" default:"50" validate:"min=1"`
	LockTTL         time.Duration `yaml:"lock_ttl" default:"30m"`
	Step            string        `yaml:"step" default:"1d" validate:"oneof=1d 1w 1mo"`
	RegimeSeries    string        `yaml:"regime_series" default:"VIXCLS"`
	Regime          regime.Config `yaml:"regime"`
	Publish         bool          `yaml:"publish"`
}

// Load reads and parses a YAML configuration file. Defaults are applied
// before the file is decoded.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b, nil)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b, os.LookupEnv)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) { return decode(b, nil) }

func decode(b []byte, lookup func(string) (string, bool)) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if lookup != nil {
		if err := c.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("FINSIGNAL_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Logging.Level)
	str("BACKEND", &c.Backend.Type)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	str("POSTGRES_HOST", &c.Postgres.Host)
	str("POSTGRES_PASSWORD", &c.Postgres.Password)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("PROFILES_FILE", &c.Scoring.ProfilesFile)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	list("REDIS_ADDRS", &c.Redis.Addrs)
	list("ENTITIES", &c.Entities)

	if v, ok := lookup("SCORING_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCORING_WORKERS: %w", err)
		}
		c.Scoring.Workers = n
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate runs struct tag validation followed by cross-field checks.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Redis.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs cannot be empty when redis is enabled")
	}
	if c.Scoring.Publish && !c.Kafka.Enabled {
		return fmt.Errorf("scoring.publish requires kafka.enabled")
	}
	// Both database backends read observations from ClickHouse.
	if c.Backend.Type != BackendMemory && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for the %s backend", c.Backend.Type)
	}
	if c.Scoring.Regime.MinPoints > 0 {
		if err := c.Scoring.Regime.Validate(); err != nil {
			return fmt.Errorf("scoring.regime: %w", err)
		}
	}
	return nil
}
