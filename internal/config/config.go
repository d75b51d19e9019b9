// Package config loads service settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	DBPath         string        `mapstructure:"DB_PATH"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	FraudOracleURL     string        `mapstructure:"FRAUD_ORACLE_URL"`
	FraudOracleTimeout time.Duration `mapstructure:"FRAUD_ORACLE_TIMEOUT"`

	RedisURL     string        `mapstructure:"REDIS_URL"`
	RateCacheTTL time.Duration `mapstructure:"RATE_CACHE_TTL"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"SETTLEMENT_EVENTS_EXCHANGE"`

	// SkipSettledLeads excludes leads already folded into a payment from
	// later period closes.
	SkipSettledLeads bool `mapstructure:"SKIP_SETTLED_LEADS"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"DB_PATH":                    "payouts.db",
	"LOG_LEVEL":                  "info",
	"REQUEST_TIMEOUT":            "30s",
	"FRAUD_ORACLE_URL":           "",
	"FRAUD_ORACLE_TIMEOUT":       "5s",
	"REDIS_URL":                  "",
	"RATE_CACHE_TTL":             "5m",
	"RABBITMQ_URL":               "",
	"SETTLEMENT_EVENTS_EXCHANGE": "payouts.settlement",
	"SKIP_SETTLED_LEADS":         false,
	"CORS_ALLOWED_ORIGINS":       "*",
}

// LoadConfig reads an optional .env file from path, then lets environment
// variables override it.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, val := range defaults {
		v.SetDefault(key, val)
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.CORSAllowedOrigins = splitOrigins(cfg.CORSAllowedOrigins)
	return cfg, nil
}

// splitOrigins accepts both a decoded slice and a single comma separated
// entry.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
