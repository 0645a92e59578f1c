package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the optimization and conflict-detection heuristics.
type SchedulerConfig struct {
	TravelBufferMinutes   int
	RouteBufferMinutes    int
	SessionMinutes        int
	WorkWeekHours         float64
	OptimizationLockTTL   time.Duration
	BalanceUpperTolerance float64
	BalanceLowerTolerance float64
}

// EventsConfig controls domain event publication.
type EventsConfig struct {
	Channel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		TravelBufferMinutes:   v.GetInt("SCHEDULER_TRAVEL_BUFFER_MINUTES"),
		RouteBufferMinutes:    v.GetInt("SCHEDULER_ROUTE_BUFFER_MINUTES"),
		SessionMinutes:        v.GetInt("SCHEDULER_DEFAULT_SESSION_MINUTES"),
		WorkWeekHours:         v.GetFloat64("SCHEDULER_WORK_WEEK_HOURS"),
		OptimizationLockTTL:   parseDuration(v.GetString("SCHEDULER_OPTIMIZATION_LOCK_TTL"), 2*time.Minute),
		BalanceUpperTolerance: v.GetFloat64("SCHEDULER_BALANCE_UPPER_TOLERANCE"),
		BalanceLowerTolerance: v.GetFloat64("SCHEDULER_BALANCE_LOWER_TOLERANCE"),
	}

	cfg.Events = EventsConfig{
		Channel: v.GetString("EVENTS_CHANNEL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "care_scheduling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_TRAVEL_BUFFER_MINUTES", 30)
	v.SetDefault("SCHEDULER_ROUTE_BUFFER_MINUTES", 15)
	v.SetDefault("SCHEDULER_DEFAULT_SESSION_MINUTES", 120)
	v.SetDefault("SCHEDULER_WORK_WEEK_HOURS", 40.0)
	v.SetDefault("SCHEDULER_OPTIMIZATION_LOCK_TTL", "2m")
	v.SetDefault("SCHEDULER_BALANCE_UPPER_TOLERANCE", 1.1)
	v.SetDefault("SCHEDULER_BALANCE_LOWER_TOLERANCE", 0.9)

	v.SetDefault("EVENTS_CHANNEL", "scheduling.events")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
