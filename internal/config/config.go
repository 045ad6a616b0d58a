// Package config loads daemon settings from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/draftwire/draftwire/internal/models"
)

// Config holds every daemon setting.
type Config struct {
	Server struct {
		// Addr is the auction server's TCP endpoint.
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Draft struct {
		ID          string   `yaml:"id"`
		MaxManagers int      `yaml:"max_managers"`
		Quota       []string `yaml:"quota"`
	} `yaml:"draft"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the settings used when no file or env overrides exist.
func Default() Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:1300"
	cfg.HTTP.Addr = ":8080"
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.SubjectPrefix = "draftwire.changes"
	cfg.Draft.ID = "1"
	cfg.Draft.MaxManagers = 10
	cfg.Draft.Quota = []string{"QB", "RB", "RB", "WR", "WR", "TE", "DEF", "K"}
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist) and applies env overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.Addr = getEnv("DRAFTWIRE_SERVER_ADDR", cfg.Server.Addr)
	cfg.HTTP.Addr = getEnv("DRAFTWIRE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.NATS.Enabled = getEnvAsBool("DRAFTWIRE_NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = getEnv("DRAFTWIRE_NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("DRAFTWIRE_NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Draft.ID = getEnv("DRAFTWIRE_DRAFT_ID", cfg.Draft.ID)
	cfg.Draft.MaxManagers = getEnvAsInt("DRAFTWIRE_DRAFT_MAX_MANAGERS", cfg.Draft.MaxManagers)
	cfg.Log.Level = getEnv("DRAFTWIRE_LOG_LEVEL", cfg.Log.Level)

	return cfg, cfg.validate()
}

// Quota converts the configured quota strings to position codes.
func (c Config) Quota() ([]models.Position, error) {
	quota := make([]models.Position, 0, len(c.Draft.Quota))
	for _, raw := range c.Draft.Quota {
		pos := models.Position(raw)
		if !models.ValidPosition(pos) {
			return nil, fmt.Errorf("unknown position %q in quota", raw)
		}
		quota = append(quota, pos)
	}
	return quota, nil
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Draft.ID == "" {
		return fmt.Errorf("draft id is required")
	}
	if c.Draft.MaxManagers <= 0 {
		return fmt.Errorf("draft max managers must be positive")
	}
	if len(c.Draft.Quota) == 0 {
		return fmt.Errorf("draft quota must not be empty")
	}
	_, err := c.Quota()
	return err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
