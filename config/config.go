package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Env string

const (
	Dev        Env = "development"
	Test       Env = "test"
	Preview    Env = "preview"
	Production Env = "production"
)

type LogConfig struct {
	Level string

	// File enables a rotating log file next to stderr output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	APIBaseURL        string
	InspectionBaseURL string
}

type LicenseConfig struct {
	Key      string
	CheckURL string
}

type DBConfig struct {
	// DSN selects the driver: postgres://, libsql://, or a sqlite file path.
	DSN         string
	Token       string
	AutoMigrate bool
}

type RedisConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Scheme   string
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	Prefetch        int
	DeclareTopology bool
}

type QueryConfig struct {
	PageSize       int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

type InspectionConfig struct {
	RatePerSecond float64
	Burst         int
}

type Config struct {
	AppName string
	ENV     Env
	AppPort int

	// CORSOrigins are allowed in addition to the local dev origins.
	CORSOrigins []string

	Log LogConfig

	Google  GoogleConfig
	License LicenseConfig

	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig

	Query      QueryConfig
	Inspection InspectionConfig
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "search-analytics-node")
	v.SetDefault("APP_ENV", string(Dev))
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	v.SetDefault("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	v.SetDefault("GOOGLE_SCOPES", "https://www.googleapis.com/auth/webmasters.readonly")
	v.SetDefault("GOOGLE_API_BASE_URL", "https://www.googleapis.com")
	v.SetDefault("GOOGLE_INSPECTION_BASE_URL", "https://searchconsole.googleapis.com")

	v.SetDefault("LICENSE_CHECK_URL", "https://keycheck.searchanalyticsnode.com/")

	v.SetDefault("DB_DSN", "search-analytics.db")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")

	v.SetDefault("RABBITMQ_EXCHANGE", "events")
	v.SetDefault("RABBITMQ_QUEUE", "node.execution.requested.v1")
	v.SetDefault("RABBITMQ_ROUTING_KEY", "node.execution.requested.v1")
	v.SetDefault("RABBITMQ_PREFETCH", 1)

	v.SetDefault("QUERY_PAGE_SIZE", 25000)
	v.SetDefault("QUERY_MAX_RETRIES", 3)
	v.SetDefault("QUERY_RETRY_BASE_MS", 500)

	v.SetDefault("INSPECTION_RPS", 10)
	v.SetDefault("INSPECTION_BURST", 1)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		ENV:     Env(strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))),
		AppPort: v.GetInt("APP_PORT"),

		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),

		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			File:       strings.TrimSpace(v.GetString("LOG_FILE")),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},

		Google: GoogleConfig{
			ClientID:          v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret:      v.GetString("GOOGLE_CLIENT_SECRET"),
			AuthURL:           v.GetString("GOOGLE_AUTH_URL"),
			TokenURL:          v.GetString("GOOGLE_TOKEN_URL"),
			Scopes:            splitList(v.GetString("GOOGLE_SCOPES")),
			APIBaseURL:        strings.TrimRight(v.GetString("GOOGLE_API_BASE_URL"), "/"),
			InspectionBaseURL: strings.TrimRight(v.GetString("GOOGLE_INSPECTION_BASE_URL"), "/"),
		},

		License: LicenseConfig{
			Key:      strings.TrimSpace(v.GetString("LICENSE_KEY")),
			CheckURL: v.GetString("LICENSE_CHECK_URL"),
		},

		DB: DBConfig{
			DSN:         strings.TrimSpace(v.GetString("DB_DSN")),
			Token:       strings.TrimSpace(v.GetString("DB_TOKEN")),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},

		Redis: RedisConfig{
			User:     v.GetString("REDIS_USER"),
			Password: v.GetString("REDIS_PASSWORD"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Scheme:   v.GetString("REDIS_SCHEME"),
		},

		RabbitMQ: RabbitMQConfig{
			URL:             strings.TrimSpace(v.GetString("RABBITMQ_URL")),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			Queue:           v.GetString("RABBITMQ_QUEUE"),
			RoutingKey:      v.GetString("RABBITMQ_ROUTING_KEY"),
			Prefetch:        v.GetInt("RABBITMQ_PREFETCH"),
			DeclareTopology: v.GetBool("RABBITMQ_DECLARE_TOPOLOGY"),
		},

		Query: QueryConfig{
			PageSize:       v.GetInt("QUERY_PAGE_SIZE"),
			MaxRetries:     v.GetInt("QUERY_MAX_RETRIES"),
			RetryBaseDelay: time.Duration(v.GetInt("QUERY_RETRY_BASE_MS")) * time.Millisecond,
		},

		Inspection: InspectionConfig{
			RatePerSecond: v.GetFloat64("INSPECTION_RPS"),
			Burst:         v.GetInt("INSPECTION_BURST"),
		},
	}

	switch cfg.ENV {
	case Dev, Test, Preview, Production:
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q", cfg.ENV)
	}
	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.Redis.Port)
	}
	if cfg.Query.PageSize <= 0 || cfg.Query.PageSize > 25000 {
		return nil, fmt.Errorf("invalid QUERY_PAGE_SIZE %d (1..25000)", cfg.Query.PageSize)
	}
	if cfg.Query.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid QUERY_MAX_RETRIES %d", cfg.Query.MaxRetries)
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
