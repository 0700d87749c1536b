package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBDir    string     `env:"DB_DIR" envDefault:"data"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// ContentDir overrides the embedded chapter content when set.
	ContentDir string `env:"CONTENT_DIR"`

	// Remote account store. Empty RemoteDSN runs guest-only.
	RemoteDSN      string        `env:"REMOTE_DSN"`
	RemoteMaxConns int32         `env:"REMOTE_MAX_CONNS" envDefault:"10"`
	RemoteTimeout  time.Duration `env:"REMOTE_TIMEOUT" envDefault:"5s"`

	// Identity provider.
	RedisURL       string `env:"REDIS_URL"`
	SessionChannel string `env:"SESSION_CHANNEL" envDefault:"storyline:auth"`
	JWTSecret      string `env:"JWT_SECRET"`
	JWTIssuer      string `env:"JWT_ISSUER"`

	RabbitMQURL    string `env:"RABBITMQ_URL"`
	EventsExchange string `env:"EVENTS_EXCHANGE" envDefault:"storyline.events"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory if there is one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.RedisURL != "" && cfg.JWTSecret == "" {
		return nil, errors.New("REDIS_URL requires JWT_SECRET")
	}
	return &cfg, nil
}
