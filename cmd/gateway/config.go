package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	AdminAddr   string `env:"ADMIN_ADDR" envDefault:":9090"`
	UpstreamURL string `env:"UPSTREAM_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	SlotsMax            int           `env:"SLOTS_MAX" envDefault:"100"`
	SlotsAcquireTimeout time.Duration `env:"SLOTS_ACQUIRE_TIMEOUT" envDefault:"0s"`
	SlotsQuiescence     time.Duration `env:"SLOTS_QUIESCENCE" envDefault:"3s"`
	SlotsFailOnLeak     bool          `env:"SLOTS_FAIL_ON_LEAK" envDefault:"false"`

	AdmissionEnabled bool          `env:"ADMISSION_ENABLED" envDefault:"false"`
	AdmissionRPS     float64       `env:"ADMISSION_RPS" envDefault:"10"`
	AdmissionBurst   int           `env:"ADMISSION_BURST" envDefault:"20"`
	KeyHeader        string        `env:"ADMISSION_KEY_HEADER"`
	TrustXFF         bool          `env:"TRUST_XFF" envDefault:"false"`
	RetryAfter       time.Duration `env:"RETRY_AFTER" envDefault:"1s"`

	StatsEnabled       bool          `env:"SLOTS_STATS_ENABLED" envDefault:"false"`
	StatsRedisAddr     string        `env:"SLOTS_STATS_REDIS_ADDR"`
	StatsRedisPassword string        `env:"SLOTS_STATS_REDIS_PASSWORD"`
	StatsRedisDB       int           `env:"SLOTS_STATS_REDIS_DB" envDefault:"0"`
	StatsPrefix        string        `env:"SLOTS_STATS_PREFIX" envDefault:"slots:stats"`
	StatsTTL           time.Duration `env:"SLOTS_STATS_TTL" envDefault:"24h"`
	StatsBucket        string        `env:"SLOTS_STATS_BUCKET" envDefault:"minute"`
	StatsTrackSlots    bool          `env:"SLOTS_STATS_TRACK_SLOTS" envDefault:"false"`
}

func readConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if c.SlotsMax <= 0 {
		return errors.New("SLOTS_MAX must be > 0")
	}
	if c.SlotsQuiescence <= 0 {
		return errors.New("SLOTS_QUIESCENCE must be > 0")
	}
	if c.AdmissionEnabled {
		if c.AdmissionRPS <= 0 {
			return errors.New("ADMISSION_RPS must be > 0")
		}
		if c.AdmissionBurst <= 0 {
			return errors.New("ADMISSION_BURST must be > 0")
		}
	}
	if c.StatsEnabled && strings.TrimSpace(c.StatsRedisAddr) == "" {
		return errors.New("SLOTS_STATS_REDIS_ADDR is required when SLOTS_STATS_ENABLED=true")
	}
	return nil
}
