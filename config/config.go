package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP edge
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL (link directory + click log)
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis (rate limiting)
	Redis RedisConfig `mapstructure:"redis"`

	// NATS (cache invalidation + click export)
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	Cache     CacheConfig     `mapstructure:"cache"`
	Clicks    ClicksConfig    `mapstructure:"clicks"`
	Drift     DriftConfig     `mapstructure:"drift"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// OpsToken guards the /_internal endpoints. Empty leaves them unmounted.
	OpsToken string `mapstructure:"ops_token"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
	AutoMigrate       bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	MonitorPort       int    `mapstructure:"monitor_port"`
	InvalidateSubject string `mapstructure:"invalidate_subject"`
	ExportClicks      bool   `mapstructure:"export_clicks"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CacheConfig sizes the in-process resolution cache.
type CacheConfig struct {
	Size          int           `mapstructure:"size"`
	Shards        int           `mapstructure:"shards"`
	TTL           time.Duration `mapstructure:"ttl"`
	NegativeTTL   time.Duration `mapstructure:"negative_ttl"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// ClicksConfig drives the click buffer and the background persister.
type ClicksConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	FlushTimeout   time.Duration `mapstructure:"flush_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type DriftConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Lookback time.Duration `mapstructure:"lookback"`
	Grace    time.Duration `mapstructure:"grace"`
	Limit    int           `mapstructure:"limit"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.ops_token", "")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "linkgate")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 20)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "30m")
	v.SetDefault("postgres.max_conn_idle_time", "5m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.monitor_port", 8222)
	v.SetDefault("nats.invalidate_subject", "links.invalidate")
	v.SetDefault("nats.export_clicks", false)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("cache.size", 100_000)
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("cache.negative_ttl", 5*time.Second)
	v.SetDefault("cache.lookup_timeout", 500*time.Millisecond)

	v.SetDefault("clicks.buffer_size", 10_000)
	v.SetDefault("clicks.workers", 2)
	v.SetDefault("clicks.batch_size", 200)
	v.SetDefault("clicks.flush_interval", time.Second)
	v.SetDefault("clicks.flush_timeout", 10*time.Second)
	v.SetDefault("clicks.max_retries", 3)
	v.SetDefault("clicks.initial_backoff", 100*time.Millisecond)
	v.SetDefault("clicks.max_backoff", 2*time.Second)

	v.SetDefault("drift.enabled", true)
	v.SetDefault("drift.interval", 5*time.Minute)
	v.SetDefault("drift.lookback", time.Hour)
	v.SetDefault("drift.grace", 2*time.Minute)
	v.SetDefault("drift.limit", 100)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests", 300)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.key_prefix", "ratelimit")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.ops_token", "SERVER_OPS_TOKEN", "OPS_TOKEN")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
}

func (c *Config) validate() error {
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Cache.TTL <= 0 || c.Cache.NegativeTTL <= 0 {
		return fmt.Errorf("cache ttl values must be positive")
	}
	if c.Cache.NegativeTTL > c.Cache.TTL {
		return fmt.Errorf("cache.negative_ttl (%s) must not exceed cache.ttl (%s)", c.Cache.NegativeTTL, c.Cache.TTL)
	}
	if c.Clicks.BufferSize <= 0 {
		return fmt.Errorf("clicks.buffer_size must be positive, got %d", c.Clicks.BufferSize)
	}
	if c.Clicks.Workers <= 0 {
		return fmt.Errorf("clicks.workers must be positive, got %d", c.Clicks.Workers)
	}
	if c.Clicks.MaxRetries < 0 {
		return fmt.Errorf("clicks.max_retries must not be negative, got %d", c.Clicks.MaxRetries)
	}
	return nil
}
