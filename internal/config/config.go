package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, loaded from environment variables.
type Config struct {
	Host         string `env:"HOST" envDefault:"0.0.0.0"`
	Port         int    `env:"PORT" envDefault:"8000"`
	AllowOrigins string `env:"ALLOW_ORIGINS" envDefault:"*"`

	// BoardConfigPath points to a JSON board/piece configuration; empty means
	// the built-in standard setup.
	BoardConfigPath string `env:"BOARD_CONFIG"`

	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"20ms"`
	MaxGames     int           `env:"MAX_GAMES" envDefault:"64"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
