package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adhocore/gronx"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	defaultSweepCron     = "*/30 * * * * * *" // every 30 seconds (7-segment, seconds first)
	defaultSweepBatch    = 200
	defaultSweepRate     = 20.0
	defaultHTTPListen    = "127.0.0.1:7070"
	defaultLogLevel      = "info"
	defaultUserAgent     = "wppbridge/0.1"
)

// Config represents the global ~/.wpp/config.toml.
type Config struct {
	DefaultInstance string       `toml:"default_instance"`
	Remote          RemoteConfig `toml:"remote"`
	Sweep           SweepConfig  `toml:"sweep"`
	HTTP            HTTPConfig   `toml:"http"`
	Log             LogConfig    `toml:"log"`
}

// RemoteConfig points at the backend that is the system of record.
type RemoteConfig struct {
	BaseURL   string   `toml:"base_url"`
	Token     string   `toml:"token"`
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// SweepConfig controls the reconciliation sweep.
type SweepConfig struct {
	Cron          string  `toml:"cron"`
	BatchSize     int     `toml:"batch_size"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault reads the config at path, falling back to defaults when the
// file does not exist, and then applies environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from WPP_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Remote.BaseURL, "WPP_REMOTE_URL")
	set(&c.Remote.Token, "WPP_REMOTE_TOKEN")
	set(&c.HTTP.Listen, "WPP_HTTP_LISTEN")
	set(&c.Sweep.Cron, "WPP_SWEEP_CRON")
	set(&c.Log.Level, "WPP_LOG_LEVEL")
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.base_url %q is not an http(s) URL", c.Remote.BaseURL)
	}
	if !gronx.New().IsValid(c.Sweep.Cron) {
		return fmt.Errorf("sweep.cron %q is not a valid cron expression", c.Sweep.Cron)
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep.batch_size must be positive, got %d", c.Sweep.BatchSize)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Remote.Timeout.Duration <= 0 {
		c.Remote.Timeout.Duration = defaultRemoteTimeout
	}
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = defaultUserAgent
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = defaultSweepCron
	}
	if c.Sweep.BatchSize <= 0 {
		c.Sweep.BatchSize = defaultSweepBatch
	}
	if c.Sweep.RatePerSecond <= 0 {
		c.Sweep.RatePerSecond = defaultSweepRate
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = defaultHTTPListen
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
