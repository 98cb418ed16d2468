package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Offers     OffersConfig     `mapstructure:"offers"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig backs the notification delivery queue. An empty Addr disables
// the relay; notification rows are still created.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SettlementConfig struct {
	// InvoiceTrigger is the order status that causes invoice issuance.
	// "approved_completed" is the default; deployments matching the legacy
	// behavior set "completed".
	InvoiceTrigger string `mapstructure:"invoice_trigger"`
	DueDays        int    `mapstructure:"due_days"`
}

type OffersConfig struct {
	// ExclusiveAccept clears the accepted flag on sibling offers when one
	// offer on an order is accepted.
	ExclusiveAccept bool `mapstructure:"exclusive_accept"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the yaml config at path and applies KHIDMA_* env overrides
// (e.g. KHIDMA_DATABASE_URL). A missing file is fine; defaults plus env win.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("settlement.invoice_trigger", "approved_completed")
	v.SetDefault("settlement.due_days", 7)
	v.SetDefault("offers.exclusive_accept", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "")

	v.SetEnvPrefix("KHIDMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required (or KHIDMA_DATABASE_URL)")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required (or KHIDMA_AUTH_JWT_SECRET)")
	}
	return &cfg, nil
}
