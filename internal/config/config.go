package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatter/config.toml.
type Config struct {
	DefaultWorkspace string      `toml:"default_workspace"`
	Log              Log         `toml:"log"`
	Storage          Storage     `toml:"storage"`
	Replication      Replication `toml:"replication"`
	Chat             Chat        `toml:"chat"`
}

// Log configures the daemon logger.
type Log struct {
	Level string `toml:"level"`
}

// Storage configures the local object store.
type Storage struct {
	// ObjectsDir defaults to <workspace>/objects when empty.
	ObjectsDir string `toml:"objects_dir"`
	// BaseURL, when set, is used to build attachment URLs instead of file:// URLs.
	BaseURL string `toml:"base_url"`
}

// Replication configures the dual-write path of the conversation log.
type Replication struct {
	// Repair enables the replica outbox. When false a failed second write
	// leaves the conversation partially replicated.
	Repair      bool `toml:"repair"`
	IntervalMs  int  `toml:"interval_ms"`
	MaxAttempts int  `toml:"max_attempts"`
	RatePerSec  int  `toml:"rate_per_sec"`
}

// Chat configures live views.
type Chat struct {
	ResolveTimeoutMs int `toml:"resolve_timeout_ms"`
	ResyncIntervalMs int `toml:"resync_interval_ms"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultWorkspace: "main",
		Log:              Log{Level: "info"},
		Replication: Replication{
			Repair:      true,
			IntervalMs:  500,
			MaxAttempts: 20,
			RatePerSec:  50,
		},
		Chat: Chat{
			ResolveTimeoutMs: 10000,
			ResyncIntervalMs: 2000,
		},
	}
}

// ReplicationInterval returns the replicator tick as a duration.
func (c *Config) ReplicationInterval() time.Duration {
	return time.Duration(c.Replication.IntervalMs) * time.Millisecond
}

// ResolveTimeout bounds a single attachment resolution.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Chat.ResolveTimeoutMs) * time.Millisecond
}

// ResyncInterval is how often live subscriptions re-read the store.
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.Chat.ResyncIntervalMs) * time.Millisecond
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
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
