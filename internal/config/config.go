// Package config loads client settings. Values are resolved in order:
// defaults, then the YAML file, then CHATSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Client  ClientConfig  `yaml:"client"`
}

type ServerConfig struct {
	URL            string        `yaml:"url"`
	Impl           string        `yaml:"impl"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Sink   string `yaml:"sink"`
	Format string `yaml:"format"`
}

type ClientConfig struct {
	OptimisticSend       bool `yaml:"optimistic_send"`
	FetchHistoryOnSelect bool `yaml:"fetch_history_on_select"`
	PurgeOnLogout        bool `yaml:"purge_on_logout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:            "ws://localhost:8080/chat",
			Impl:           "gobwas",
			ReconnectDelay: 3 * time.Second,
			PingInterval:   15 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "pebble",
			Path:    ".chatsync/state",
		},
		Log: LogConfig{
			Level:  "info",
			Sink:   "stderr",
			Format: "text",
		},
		Client: ClientConfig{
			OptimisticSend: true,
		},
	}
}

// LoadDotEnv loads variables from a .env file when it exists. Variables
// already set in the environment are kept.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.URL = getEnv("CHATSYNC_URL", cfg.Server.URL)
	cfg.Server.Impl = getEnv("CHATSYNC_WS_IMPL", cfg.Server.Impl)
	cfg.Server.ReconnectDelay = getEnvDuration("CHATSYNC_RECONNECT_DELAY", cfg.Server.ReconnectDelay)
	cfg.Server.PingInterval = getEnvDuration("CHATSYNC_PING_INTERVAL", cfg.Server.PingInterval)
	cfg.Storage.Backend = getEnv("CHATSYNC_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Path = getEnv("CHATSYNC_STORAGE_PATH", cfg.Storage.Path)
	cfg.Log.Level = getEnv("CHATSYNC_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Sink = getEnv("CHATSYNC_LOG_SINK", cfg.Log.Sink)
	cfg.Log.Format = getEnv("CHATSYNC_LOG_FORMAT", cfg.Log.Format)
	cfg.Client.OptimisticSend = getEnvBool("CHATSYNC_OPTIMISTIC_SEND", cfg.Client.OptimisticSend)
	cfg.Client.FetchHistoryOnSelect = getEnvBool("CHATSYNC_FETCH_HISTORY_ON_SELECT", cfg.Client.FetchHistoryOnSelect)
	cfg.Client.PurgeOnLogout = getEnvBool("CHATSYNC_PURGE_ON_LOGOUT", cfg.Client.PurgeOnLogout)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	}
	switch c.Server.Impl {
	case "gobwas", "gorilla", "nhooyr":
	default:
		errs = append(errs, fmt.Errorf("server.impl %q is not gobwas, gorilla or nhooyr", c.Server.Impl))
	}
	if c.Server.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("server.reconnect_delay must be positive"))
	}
	switch c.Storage.Backend {
	case "pebble", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not pebble, sqlite or memory", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
