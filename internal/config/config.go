package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/techbridge/service-tutoring/internal/platform/database"
)

// ServiceConfig holds all configuration for the tutoring service.
type ServiceConfig struct {
	Port            string
	AppEnv          string
	DBConfig        database.PostgresConfig
	JWTConfig       JWTConfig
	KafkaConfig     KafkaConfig
	RedisConfig     RedisConfig
	SchedulerConfig SchedulerConfig
	BookingConfig   BookingConfig
	TracingConfig   TracingConfig
}

// JWTConfig holds the access token settings.
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// KafkaConfig holds broker settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// RedisConfig holds Redis settings. An empty Addr disables the role cache
// and the sweep lock.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	RoleCacheTTL time.Duration
}

// SchedulerConfig holds the status sweep settings.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	LockTTL  time.Duration
}

// BookingConfig holds booking rules.
type BookingConfig struct {
	ConflictPolicy string
}

// TracingConfig holds the OTLP exporter endpoint. Empty disables export.
type TracingConfig struct {
	Endpoint string
}

// Load reads configuration from TUTORING_* environment variables and an
// optional config.yaml in the working directory.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TUTORING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &ServiceConfig{
		Port:   ":" + strings.TrimPrefix(v.GetString("service.port"), ":"),
		AppEnv: v.GetString("app.env"),
		DBConfig: database.PostgresConfig{
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			DBName:          v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
		},
		JWTConfig: JWTConfig{
			Secret:         v.GetString("jwt.secret"),
			AccessTokenTTL: v.GetDuration("jwt.access_token_ttl"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:     splitList(v.GetString("kafka.brokers")),
			GroupPrefix: v.GetString("kafka.group_prefix"),
		},
		RedisConfig: RedisConfig{
			Addr:         v.GetString("redis.addr"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			RoleCacheTTL: v.GetDuration("redis.role_cache_ttl"),
		},
		SchedulerConfig: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
			LockTTL:  v.GetDuration("scheduler.lock_ttl"),
		},
		BookingConfig: BookingConfig{
			ConflictPolicy: v.GetString("booking.conflict_policy"),
		},
		TracingConfig: TracingConfig{
			Endpoint: v.GetString("tracing.endpoint"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", "8080")
	v.SetDefault("app.env", "development")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "techbridge_tutoring")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_prefix", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.role_cache_ttl", 10*time.Minute)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 60*time.Second)
	v.SetDefault("scheduler.lock_ttl", 50*time.Second)

	v.SetDefault("booking.conflict_policy", "optimistic")

	v.SetDefault("tracing.endpoint", "")
}

func (c *ServiceConfig) validate() error {
	if c.JWTConfig.Secret == "" {
		return errors.New("TUTORING_JWT_SECRET is required")
	}
	if c.SchedulerConfig.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.SchedulerConfig.Interval)
	}
	if c.SchedulerConfig.LockTTL <= 0 || c.SchedulerConfig.LockTTL >= c.SchedulerConfig.Interval {
		return fmt.Errorf("scheduler lock ttl must be positive and shorter than the interval, got %s", c.SchedulerConfig.LockTTL)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
