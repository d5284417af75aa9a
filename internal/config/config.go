// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/app/config/config.yaml"

// Dedup backends.
const (
	DedupRedis    = "redis"
	DedupPostgres = "postgres"
	DedupNone     = "none"
)

// ReplyRule is one keyword category and the template it selects.
type ReplyRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Template string   `yaml:"template"`
}

// ReplyConfig overrides the built-in reply templates. Empty fields keep the
// built-in value; a non-empty Rules list replaces the built-in rules.
type ReplyConfig struct {
	Signature       string      `yaml:"signature"`
	DefaultSubject  string      `yaml:"default_subject"`
	DefaultTemplate string      `yaml:"default_template"`
	Rules           []ReplyRule `yaml:"rules"`
}

// Config holds all configuration for the auto-reply service.
type Config struct {
	// AgentMail
	InboxID          string
	APIKey           string
	AgentMailBaseURL string
	SendTimeout      time.Duration

	// Classifier; nil keeps the built-in markers.
	SystemSenderMarkers []string

	Reply ReplyConfig

	// Dedup
	DedupBackend string
	DedupTTL     time.Duration

	// Redis
	RedisURL     string
	ContactQueue string

	// Postgres, only needed for the ledger dedup backend.
	DatabaseURL string

	// Contact form
	ContactRatePerMinute int

	// Servers
	WebhookPort int
	Port        int // health + metrics

	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	AgentMail struct {
		APIKey  string `yaml:"api_key"`
		InboxID string `yaml:"inbox_id"`
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"agentmail"`
	Classifier struct {
		SystemSenderMarkers []string `yaml:"system_sender_markers"`
	} `yaml:"classifier"`
	Reply ReplyConfig `yaml:"reply"`
	Dedup struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
	} `yaml:"dedup"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Contact string `yaml:"contact"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Contact struct {
		RatePerMinute int `yaml:"rate_per_minute"`
	} `yaml:"contact"`
	Server struct {
		WebhookPort int `yaml:"webhook_port"`
		Port        int `yaml:"port"`
	} `yaml:"server"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. When CONFIG_PATH is unset and the default file does
// not exist, configuration comes from the environment alone.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", defaultConfigPath)

	raw, err := readRaw(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || os.Getenv("CONFIG_PATH") != "" {
			return nil, err
		}
		raw = &rawConfig{}
	}

	return build(raw)
}

func readRaw(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &raw, nil
}

func build(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		InboxID:              strings.ToLower(strings.TrimSpace(firstNonEmpty(raw.AgentMail.InboxID, os.Getenv("AGENTMAIL_INBOX_ID")))),
		APIKey:               strings.TrimSpace(firstNonEmpty(raw.AgentMail.APIKey, os.Getenv("AGENTMAIL_API_KEY"))),
		AgentMailBaseURL:     firstNonEmpty(raw.AgentMail.BaseURL, os.Getenv("AGENTMAIL_BASE_URL")),
		SystemSenderMarkers:  raw.Classifier.SystemSenderMarkers,
		Reply:                raw.Reply,
		DedupBackend:         strings.ToLower(firstNonEmpty(raw.Dedup.Backend, envOrDefault("DEDUP_BACKEND", DedupRedis))),
		RedisURL:             firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		ContactQueue:         firstNonEmpty(raw.Redis.Queues.Contact, envOrDefault("CONTACT_QUEUE", "autoreply:contact")),
		DatabaseURL:          firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		ContactRatePerMinute: firstPositive(raw.Contact.RatePerMinute, envOrDefaultInt("CONTACT_RATE_PER_MINUTE", 5)),
		WebhookPort:          firstPositive(raw.Server.WebhookPort, envOrDefaultInt("WEBHOOK_PORT", 8000)),
		Port:                 firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
	}

	var err error
	if cfg.SendTimeout, err = durationOr(raw.AgentMail.Timeout, "AGENTMAIL_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("agentmail.timeout: %w", err)
	}
	if cfg.DedupTTL, err = durationOr(raw.Dedup.TTL, "DEDUP_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("dedup.ttl: %w", err)
	}
	if cfg.LogLevel, err = parseLevel(firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, err
	}

	if cfg.InboxID == "" {
		return nil, fmt.Errorf("no monitored inbox configured: set agentmail.inbox_id or AGENTMAIL_INBOX_ID")
	}

	switch cfg.DedupBackend {
	case DedupRedis, DedupNone:
	case DedupPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("dedup backend %q requires DATABASE_URL", DedupPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.DedupBackend)
	}

	for i, r := range cfg.Reply.Rules {
		if strings.TrimSpace(r.Template) == "" {
			return nil, fmt.Errorf("reply.rules[%d] (%s): template is empty", i, r.Category)
		}
	}
	if _, err := cfg.Reply.ComposerConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationOr parses the YAML value, else the env var, else returns fallback.
// A YAML value that fails to parse is an error; a bad env value is ignored.
func durationOr(yamlValue, envKey string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(yamlValue) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(yamlValue))
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("must be positive, got %s", d)
		}
		return d, nil
	}
	return envOrDefaultDuration(envKey, fallback), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
