package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Broker    BrokerSettings    `mapstructure:"broker"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and the session location cache.
type RedisSettings struct {
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	DB                  int           `mapstructure:"db"`
	Password            string        `mapstructure:"password"`
	TLSEnabled          bool          `mapstructure:"tls_enabled"`
	LocationCachePrefix string        `mapstructure:"location_cache_prefix"`
	LocationCacheTTL    time.Duration `mapstructure:"location_cache_ttl"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// BrokerSettings tunes the broker core.
type BrokerSettings struct {
	PhotoRequestTimeout time.Duration `mapstructure:"photo_request_timeout"`
	ReadLimitBytes      int64         `mapstructure:"read_limit_bytes"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	PongTimeout         time.Duration `mapstructure:"pong_timeout"`
}

type TelemetrySettings struct {
	MetricsNamespace string  `mapstructure:"metrics_namespace"`
	ServiceName      string  `mapstructure:"service_name"`
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("BROKER")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.location_cache_prefix",
		"redis.location_cache_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"broker.photo_request_timeout",
		"broker.read_limit_bytes",
		"broker.write_timeout",
		"broker.pong_timeout",
		"telemetry.metrics_namespace",
		"telemetry.service_name",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wearable-stream-broker")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8002)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "broker")
	v.SetDefault("postgres.password", "broker_password")
	v.SetDefault("postgres.database", "broker")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.location_cache_prefix", "broker:location_cache")
	v.SetDefault("redis.location_cache_ttl", "30m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "broker")
	v.SetDefault("kafka.async", true)

	v.SetDefault("broker.photo_request_timeout", "30s")
	v.SetDefault("broker.read_limit_bytes", 1<<20)
	v.SetDefault("broker.write_timeout", "10s")
	v.SetDefault("broker.pong_timeout", "60s")

	v.SetDefault("telemetry.metrics_namespace", "broker")
	v.SetDefault("telemetry.service_name", "wearable-stream-broker")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "BROKER_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
