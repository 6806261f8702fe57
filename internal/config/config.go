package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents ~/.crmchat/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Config is the per-profile daemon configuration.
type Config struct {
	LogLevel   string `toml:"log_level"`
	SenderID   string `toml:"sender_id"`
	SenderName string `toml:"sender_name"`

	API     API     `toml:"api"`
	Outbox  Outbox  `toml:"outbox"`
	Sync    Sync    `toml:"sync"`
	Metrics Metrics `toml:"metrics"`
	TUI     TUI     `toml:"tui"`
}

// API configures the backend REST client. An empty BaseURL runs the daemon
// offline.
type API struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

type Outbox struct {
	Interval Duration `toml:"interval"`
}

type Sync struct {
	Interval Duration `toml:"interval"`
	PageSize int      `toml:"page_size"`
}

// Metrics configures the Prometheus endpoint; empty Addr disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// TUI configures crmtui. The daemon ignores it.
type TUI struct {
	Theme string `toml:"theme"`
}

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SenderID == "" {
		c.SenderID = "me"
	}
	if c.API.Timeout.Duration <= 0 {
		c.API.Timeout.Duration = 15 * time.Second
	}
	if c.Outbox.Interval.Duration <= 0 {
		c.Outbox.Interval.Duration = 500 * time.Millisecond
	}
	if c.Sync.Interval.Duration <= 0 {
		c.Sync.Interval.Duration = 5 * time.Second
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = 50
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = "dark"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Sync.PageSize > 500 {
		return fmt.Errorf("sync.page_size %d: at most 500", c.Sync.PageSize)
	}
	switch c.TUI.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("tui.theme %q: want dark or light", c.TUI.Theme)
	}
	return nil
}

// Load reads a profile config from path and fills defaults. A missing file
// yields Default().
func Load(path string) (*Config, error) {
	cfg := &Config{}
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadGlobal reads the global config. Returns error if file missing.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Save writes v (a *Config or *Global) to the given path, creating parent dirs as needed.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
