// Package config loads stopgate settings from YAML, .env and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// #region types

// Config is the full runtime configuration.
type Config struct {
	Log      Log      `yaml:"log"`
	Gate     Gate     `yaml:"gate"`
	Extract  Extract  `yaml:"extract"`
	Analyzer Analyzer `yaml:"analyzer"`
	Dedupe   Dedupe   `yaml:"dedupe"`
	Audit    Audit    `yaml:"audit"`
	Notifier Notifier `yaml:"notifier"`
	GRPC     Listener `yaml:"grpc"`
	HTTP     Listener `yaml:"http"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Gate configures the stop gate.
type Gate struct {
	MaxDenials    int    `yaml:"max_denials"`
	NotifyTimeout string `yaml:"notify_timeout"`

	notifyTimeout time.Duration
}

// NotifyTimeoutDuration returns the parsed notify timeout.
func (g Gate) NotifyTimeoutDuration() time.Duration { return g.notifyTimeout }

// Extract configures the instruction extractor.
type Extract struct {
	MaxWords int `yaml:"max_words"`
}

// Analyzer configures lexicon overrides.
type Analyzer struct {
	LexiconPath string `yaml:"lexicon_path"`
	Watch       bool   `yaml:"watch"`
}

// Dedupe configures duplicate message suppression.
type Dedupe struct {
	TTL        string `yaml:"ttl"`
	MaxEntries int64  `yaml:"max_entries"`

	ttl time.Duration
}

// TTLDuration returns the parsed dedupe TTL.
func (d Dedupe) TTLDuration() time.Duration { return d.ttl }

// Audit configures the sqlite audit trail.
type Audit struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Notifier selects how review prompts reach the host.
type Notifier struct {
	Kind            string `yaml:"kind"`
	Addr            string `yaml:"addr"`
	NATSURL         string `yaml:"nats_url"`
	SubjectPrefix   string `yaml:"subject_prefix"`
	BreakerFailures int    `yaml:"breaker_failures"`
	BreakerCooldown string `yaml:"breaker_cooldown"`

	breakerCooldown time.Duration
}

// BreakerCooldownDuration returns the parsed breaker cooldown.
func (n Notifier) BreakerCooldownDuration() time.Duration { return n.breakerCooldown }

// Listener is a network listen address.
type Listener struct {
	Addr string `yaml:"addr"`
}

// #endregion types

// #region defaults

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Log:     Log{Level: "info"},
		Gate:    Gate{MaxDenials: 3, NotifyTimeout: "10s"},
		Extract: Extract{MaxWords: 250},
		Dedupe:  Dedupe{TTL: "10m", MaxEntries: 10000},
		Audit:   Audit{Enabled: false, Path: "stopgate.db"},
		Notifier: Notifier{
			Kind:            "none",
			SubjectPrefix:   "stopgate.inject",
			BreakerFailures: 3,
			BreakerCooldown: "30s",
		},
		GRPC: Listener{Addr: "127.0.0.1:50061"},
		HTTP: Listener{Addr: "127.0.0.1:8089"},
	}
}

// #endregion defaults

// #region load

// Load reads path (when non-empty and present) over the defaults, applies
// STOPGATE_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("STOPGATE_LOG_LEVEL", &c.Log.Level)
	str("STOPGATE_NOTIFY_TIMEOUT", &c.Gate.NotifyTimeout)
	str("STOPGATE_LEXICON_PATH", &c.Analyzer.LexiconPath)
	str("STOPGATE_AUDIT_PATH", &c.Audit.Path)
	str("STOPGATE_NOTIFIER", &c.Notifier.Kind)
	str("STOPGATE_NOTIFIER_ADDR", &c.Notifier.Addr)
	str("STOPGATE_NATS_URL", &c.Notifier.NATSURL)
	str("STOPGATE_GRPC_ADDR", &c.GRPC.Addr)
	str("STOPGATE_HTTP_ADDR", &c.HTTP.Addr)

	if err := num("STOPGATE_MAX_DENIALS", &c.Gate.MaxDenials); err != nil {
		return err
	}
	if err := num("STOPGATE_MAX_WORDS", &c.Extract.MaxWords); err != nil {
		return err
	}
	if err := flag("STOPGATE_AUDIT", &c.Audit.Enabled); err != nil {
		return err
	}
	return flag("STOPGATE_LEXICON_WATCH", &c.Analyzer.Watch)
}

// #endregion load

// #region validate

// ValidNotifiers lists accepted notifier kinds.
var ValidNotifiers = []string{"grpc", "nats", "stdio", "none"}

// Validate checks ranges and parses duration strings.
func (c *Config) Validate() error {
	var err error
	if c.Gate.MaxDenials < 1 {
		return fmt.Errorf("gate.max_denials must be >= 1")
	}
	if c.Gate.notifyTimeout, err = parsePositive("gate.notify_timeout", c.Gate.NotifyTimeout); err != nil {
		return err
	}
	if c.Extract.MaxWords < 1 {
		return fmt.Errorf("extract.max_words must be >= 1")
	}
	if c.Dedupe.ttl, err = parsePositive("dedupe.ttl", c.Dedupe.TTL); err != nil {
		return err
	}
	if c.Dedupe.MaxEntries < 1 {
		return fmt.Errorf("dedupe.max_entries must be >= 1")
	}
	if c.Analyzer.Watch && c.Analyzer.LexiconPath == "" {
		return fmt.Errorf("analyzer.watch requires analyzer.lexicon_path")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}

	c.Notifier.Kind = strings.ToLower(c.Notifier.Kind)
	valid := false
	for _, k := range ValidNotifiers {
		if c.Notifier.Kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid notifier kind: %s (valid: %v)", c.Notifier.Kind, ValidNotifiers)
	}
	switch c.Notifier.Kind {
	case "grpc":
		if c.Notifier.Addr == "" {
			return fmt.Errorf("notifier.addr is required for the grpc notifier")
		}
	case "nats":
		if c.Notifier.NATSURL == "" {
			return fmt.Errorf("notifier.nats_url is required for the nats notifier")
		}
	}
	if c.Notifier.BreakerFailures < 0 {
		return fmt.Errorf("notifier.breaker_failures must be >= 0")
	}
	if c.Notifier.breakerCooldown, err = parsePositive("notifier.breaker_cooldown", c.Notifier.BreakerCooldown); err != nil {
		return err
	}
	return nil
}

func parsePositive(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// #endregion validate
