package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	AllowedOrigin  string        `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	LiveStatusTTL  time.Duration `envconfig:"LIVE_STATUS_TTL" default:"10s"`
	ReportTimeout  time.Duration `envconfig:"REPORT_TIMEOUT" default:"5s"`
	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.LiveStatusTTL < time.Second {
		cfg.LiveStatusTTL = time.Second
	}
	if cfg.ReportTimeout < time.Second {
		cfg.ReportTimeout = time.Second
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
