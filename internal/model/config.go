package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides
// (PORTAL_NOTIFY_API_BASE_URL, PORTAL_NOTIFY_LOG_LEVEL, ...).
const EnvPrefix = "PORTAL_NOTIFY"

// APIConfig holds settings for the portal REST API.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries is how many times 429/5xx responses are retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// RealtimeConfig holds settings for the STOMP websocket feed.
type RealtimeConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	HeartBeat      time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

// SyncConfig holds the reconciliation schedule.
type SyncConfig struct {
	// UnreadInterval is how often the unread badge is reconciled.
	UnreadInterval time.Duration `mapstructure:"unread_interval" yaml:"unread_interval"`

	// FallbackInterval is how often history is polled when realtime is quiet.
	FallbackInterval time.Duration `mapstructure:"fallback_interval" yaml:"fallback_interval"`

	// RealtimeFreshWindow skips fallback polls while a realtime event
	// arrived within this window.
	RealtimeFreshWindow time.Duration `mapstructure:"realtime_fresh_window" yaml:"realtime_fresh_window"`

	// InitialLoadDelay delays the first history load after start.
	InitialLoadDelay time.Duration `mapstructure:"initial_load_delay" yaml:"initial_load_delay"`

	// AllowedRoles are the roles that receive the notification stream.
	AllowedRoles []string `mapstructure:"allowed_roles" yaml:"allowed_roles"`
}

// StoreConfig holds the local mirror location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	File   string `mapstructure:"file" yaml:"file"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// MetricsConfig holds the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
}

// DefaultAllowedRoles are the staff roles that subscribe to notifications.
var DefaultAllowedRoles = []string{
	"SERVICE_STAFF",
	"TECHNICAL_STAFF",
	"CASHIER_STAFF",
	"ACCOUNTING_STAFF",
	"ADMIN",
}

// ConfigDir returns ~/.config/portal-notify.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "portal-notify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/portal-notify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func defaults() map[string]any {
	return map[string]any{
		"api.base_url":               "http://localhost:8080/api",
		"api.timeout":                30 * time.Second,
		"api.max_retries":            3,
		"realtime.url":               "ws://localhost:8080/ws-notifications",
		"realtime.reconnect_delay":   5 * time.Second,
		"realtime.heartbeat":         10 * time.Second,
		"sync.unread_interval":       30 * time.Second,
		"sync.fallback_interval":     10 * time.Second,
		"sync.realtime_fresh_window": 30 * time.Second,
		"sync.initial_load_delay":    500 * time.Millisecond,
		"sync.allowed_roles":         DefaultAllowedRoles,
		"store.path":                 filepath.Join(ConfigDir(), "notifications.db"),
		"log.level":                  "info",
		"log.file":                   filepath.Join(ConfigDir(), "portal-notify.log"),
		"log.pretty":                 false,
		"metrics.addr":               "",
		"display.theme":              "default",
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// then applies PORTAL_NOTIFY_* environment overrides. A missing file yields
// the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Sync.AllowedRoles) == 0 {
		cfg.Sync.AllowedRoles = DefaultAllowedRoles
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("realtime", cfg.Realtime)
	v.Set("sync", cfg.Sync)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
