// Package config centralises configuration parsing for the campus carbon service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Nissan15/hackathon/internal/persistence"
)

// Config captures runtime configuration values for the campus carbon service.
type Config struct {
	HTTPAddress        string
	MetricsAddress     string
	StoreBackend       persistence.Backend
	DatabaseURL        string
	DefaultWindowDays  int
	KafkaBrokers       []string
	SchemaRegistryURL  string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	ConsumerGroupID    string
	ConsumerTopics     []string
	JWTSecret          string
	JWTIssuer          string
	TokenTTL           time.Duration
	CORSOrigin         string
	DebugMode          bool
	LogLevel           string
	LogFormat          string
	DLQPollInterval    time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries      int           // Maximum number of DLQ retry attempts before quarantine.
	DLQBaseDelay       time.Duration // Base delay used for exponential backoff.
}

var defaults = map[string]any{
	"HTTP_ADDRESS":         ":5000",
	"METRICS_ADDRESS":      ":9102",
	"STORE_BACKEND":        string(persistence.SQLite),
	"DATABASE_URL":         "campus_carbon.db",
	"DEFAULT_WINDOW_DAYS":  180,
	"KAFKA_BROKERS":        "kafka:9092",
	"SCHEMA_REGISTRY_URL":  "http://schema-registry:8081",
	"OUTBOX_POLL_INTERVAL": 2 * time.Second,
	"OUTBOX_BATCH_SIZE":    25,
	"CONSUMER_GROUP_ID":    "campus-carbon-audit",
	"CONSUMER_TOPICS":      "campus_activity_records,campus_headcounts",
	"JWT_SECRET":           "dev-secret-change-me",
	"JWT_ISSUER":           "campus-carbon",
	"TOKEN_TTL":            24 * time.Hour,
	"CORS_ORIGIN":          "*",
	"DEBUG_MODE":           false,
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "console",
	"DLQ_POLL_INTERVAL":    30 * time.Second,
	"DLQ_MAX_RETRIES":      5,
	"DLQ_BASE_DELAY":       time.Minute,
}

// Register installs defaults and environment binding on v.
func Register(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load reads v into Config and validates it. A config file, if any, must
// already be set on v.
func Load(v *viper.Viper) (Config, error) {
	Register(v)
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	backend, err := persistence.ParseBackend(strings.ToLower(v.GetString("STORE_BACKEND")))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddress:        v.GetString("HTTP_ADDRESS"),
		MetricsAddress:     v.GetString("METRICS_ADDRESS"),
		StoreBackend:       backend,
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DefaultWindowDays:  v.GetInt("DEFAULT_WINDOW_DAYS"),
		KafkaBrokers:       splitAndTrim(v.GetString("KAFKA_BROKERS")),
		SchemaRegistryURL:  v.GetString("SCHEMA_REGISTRY_URL"),
		OutboxPollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
		ConsumerGroupID:    v.GetString("CONSUMER_GROUP_ID"),
		ConsumerTopics:     splitAndTrim(v.GetString("CONSUMER_TOPICS")),
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		TokenTTL:           v.GetDuration("TOKEN_TTL"),
		CORSOrigin:         v.GetString("CORS_ORIGIN"),
		DebugMode:          v.GetBool("DEBUG_MODE"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		DLQPollInterval:    v.GetDuration("DLQ_POLL_INTERVAL"),
		DLQMaxRetries:      v.GetInt("DLQ_MAX_RETRIES"),
		DLQBaseDelay:       v.GetDuration("DLQ_BASE_DELAY"),
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.DefaultWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_WINDOW_DAYS must be positive, got %d", c.DefaultWindowDays))
	}
	if c.StoreBackend != persistence.Memory && strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
