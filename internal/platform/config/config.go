// Package config loads process configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the composition roots need to wire the service.
type Config struct {
	// Driver selects the relational store: "sqlite" or "postgres".
	Driver string `env:"LIBMAN_DB_DRIVER" envDefault:"sqlite"`
	// DSN is the driver-specific data source name. For sqlite this is a
	// file path; for postgres a connection URL.
	DSN string `env:"LIBMAN_DB_DSN" envDefault:"libman.db"`

	ListenAddr string `env:"LIBMAN_LISTEN_ADDR" envDefault:":8080"`
	LogMode    string `env:"LIBMAN_LOG_MODE" envDefault:"development"`

	// OTLPEndpoint enables trace export when set, e.g. "localhost:4318".
	OTLPEndpoint string `env:"LIBMAN_OTLP_ENDPOINT"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
