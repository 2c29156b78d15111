// Package config provides TOML configuration for the sync daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/qualivida/portalsync/internal/errors"
)

// Config is the daemon configuration.
type Config struct {
	DataDir    string       `toml:"data_dir"`
	ListenAddr string       `toml:"listen_addr"`
	LogLevel   string       `toml:"log_level"`
	Remote     RemoteConfig `toml:"remote"`
	Sync       SyncConfig   `toml:"sync"`
}

// RemoteConfig points at the hosted backend.
type RemoteConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// ProbeURL is the reachability check target. A ws:// or wss:// URL
	// selects the websocket heartbeat probe, anything else the HTTP
	// HEAD probe. Empty defaults to {url}/rest/v1/.
	ProbeURL             string `toml:"probe_url"`
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds"`
}

// SyncConfig tunes the background sync machinery.
type SyncConfig struct {
	IntervalMinutes      int `toml:"interval_minutes"`       // safety-net flush timer
	ReplayTimeoutSeconds int `toml:"replay_timeout_seconds"` // per-entry remote call bound
	PruneAfterDays       int `toml:"prune_after_days"`       // 0 disables pruning of synced entries
}

// Default returns a Config with sensible defaults rooted at baseDir.
func Default(baseDir string) *Config {
	return &Config{
		DataDir:    filepath.Join(baseDir, "data"),
		ListenAddr: "127.0.0.1:8787",
		LogLevel:   "INFO",
		Remote: RemoteConfig{
			TimeoutSeconds:       15,
			ProbeIntervalSeconds: 30,
		},
		Sync: SyncConfig{
			IntervalMinutes:      5,
			ReplayTimeoutSeconds: 30,
			PruneAfterDays:       7,
		},
	}
}

// ReadFromFile loads and validates a Config from a TOML file.
func ReadFromFile(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("failed to read %s", path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes a Config to path, failing if the file already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return apperrors.New(apperrors.ErrConfig, fmt.Sprintf("config file %s already exists", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "failed to create config directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "failed to create config file", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "failed to encode config", err)
	}
	return nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrConfig, "data_dir is required")
	}
	if c.Remote.URL == "" {
		return apperrors.New(apperrors.ErrConfig, "remote.url is required")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return apperrors.New(apperrors.ErrConfig, "remote.timeout_seconds must be positive")
	}
	if c.Sync.IntervalMinutes <= 0 {
		return apperrors.New(apperrors.ErrConfig, "sync.interval_minutes must be positive")
	}
	if c.Sync.ReplayTimeoutSeconds <= 0 {
		return apperrors.New(apperrors.ErrConfig, "sync.replay_timeout_seconds must be positive")
	}
	if c.Sync.PruneAfterDays < 0 {
		return apperrors.New(apperrors.ErrConfig, "sync.prune_after_days must not be negative")
	}
	return nil
}

// RemoteTimeout returns the remote call timeout as a Duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// SyncInterval returns the safety-net flush period as a Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// ReplayTimeout returns the per-entry replay bound as a Duration.
func (c *Config) ReplayTimeout() time.Duration {
	return time.Duration(c.Sync.ReplayTimeoutSeconds) * time.Second
}

// ProbeInterval returns the reachability check period as a Duration.
func (c *Config) ProbeInterval() time.Duration {
	if c.Remote.ProbeIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Remote.ProbeIntervalSeconds) * time.Second
}

// ProbeTarget returns the configured probe URL, defaulting to the REST
// root of the backend.
func (c *Config) ProbeTarget() string {
	if c.Remote.ProbeURL != "" {
		return c.Remote.ProbeURL
	}
	return c.Remote.URL + "/rest/v1/"
}
