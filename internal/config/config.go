package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	API           APIConfig      `toml:"api"`
	Search        SearchConfig   `toml:"search"`
	Capacity      CapacityConfig `toml:"capacity"`
	Watch         WatchConfig    `toml:"watch"`
	Notifications NotifyConfig   `toml:"notifications"`
	Log           LogConfig      `toml:"log"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	Requester      bool   `toml:"requester"` // submit allocation requests instead of allocations
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CacheMinutes   int    `toml:"cache_minutes"`
}

type SearchConfig struct {
	PageSize      int  `toml:"page_size"`
	DebounceMS    int  `toml:"debounce_ms"`
	SwitchDelayMS int  `toml:"switch_delay_ms"`
	Dedupe        bool `toml:"dedupe"`
}

type CapacityConfig struct {
	MaxUtilization int `toml:"max_utilization"`
}

type WatchConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
	// Threshold is the unfilled percentage at or above which a position is reported.
	Threshold int `toml:"threshold"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			TimeoutSeconds: 30,
			CacheMinutes:   10,
		},
		Search: SearchConfig{
			PageSize:      10,
			DebounceMS:    500,
			SwitchDelayMS: 400,
			Dedupe:        true,
		},
		Capacity: CapacityConfig{
			MaxUtilization: 100,
		},
		Watch: WatchConfig{
			IntervalMinutes: 60,
			Threshold:       50,
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c APIConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheMinutes) * time.Minute
}

func (c SearchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c SearchConfig) SwitchDelay() time.Duration {
	return time.Duration(c.SwitchDelayMS) * time.Millisecond
}

func (c WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SlogLevel maps the configured level name, falling back to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "allocr"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALLOCR_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("ALLOCR_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ALLOCR_REQUESTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.API.Requester = b
		}
	}
}

// normalize replaces nonsensical values from the file with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = def.Search.PageSize
	}
	if c.Search.DebounceMS < 0 {
		c.Search.DebounceMS = def.Search.DebounceMS
	}
	if c.Search.SwitchDelayMS < 0 {
		c.Search.SwitchDelayMS = def.Search.SwitchDelayMS
	}
	if c.Capacity.MaxUtilization <= 0 {
		c.Capacity.MaxUtilization = def.Capacity.MaxUtilization
	}
	if c.Watch.IntervalMinutes <= 0 {
		c.Watch.IntervalMinutes = def.Watch.IntervalMinutes
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = def.API.TimeoutSeconds
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes the default config to path unless a file exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

// SaveRequester persists the requester flag using a read-modify-write of
// the raw document so other settings are preserved.
func SaveRequester(path string, requester bool) error {
	cfg := make(map[string]any)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	api, ok := cfg["api"].(map[string]any)
	if !ok {
		api = make(map[string]any)
	}
	api["requester"] = requester
	cfg["api"] = api

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}
