package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the tradepost configuration file
type Config struct {
	Identity  IdentityConfig  `toml:"identity"`
	Trackers  TrackersConfig  `toml:"trackers"`
	Daemon    DaemonConfig    `toml:"daemon"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Logging   LoggingConfig   `toml:"logging"`
}

// IdentityConfig contains the local external identity settings. When both
// fields are empty a throwaway dev identity is generated on startup.
type IdentityConfig struct {
	Address  string `toml:"address"`
	Mnemonic string `toml:"mnemonic"`
}

// TrackersConfig lists the rendezvous sources the transport may dial.
// Connect events for URLs outside this list are config errors.
type TrackersConfig struct {
	Announce []string `toml:"announce"`
}

// DaemonConfig contains daemon-related settings
type DaemonConfig struct {
	EventPort    int  `toml:"event_port"`
	EventEnabled bool `toml:"event_enabled"`
}

// DiscoveryConfig contains LAN peer discovery settings
type DiscoveryConfig struct {
	MDNS bool `toml:"mdns"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Identity: IdentityConfig{},
		Trackers: TrackersConfig{
			Announce: []string{
				"wss://tracker.openwebtorrent.com",
				"wss://tracker.btorrent.xyz",
			},
		},
		Daemon: DaemonConfig{
			EventPort:    7921,
			EventEnabled: true,
		},
		Discovery: DiscoveryConfig{
			MDNS: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFrom loads the configuration from a specific file. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// SaveTo saves the configuration to a specific file
func (c *Config) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Trackers.Announce) == 0 && !c.Discovery.MDNS {
		return fmt.Errorf("no trackers configured and mDNS disabled: no way to find peers")
	}

	for _, url := range c.Trackers.Announce {
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return fmt.Errorf("invalid tracker URL %q: must be ws:// or wss://", url)
		}
	}

	if c.Daemon.EventEnabled {
		if c.Daemon.EventPort < 1 || c.Daemon.EventPort > 65535 {
			return fmt.Errorf("invalid event port: %d", c.Daemon.EventPort)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
