// Package config loads the typed configuration for one apply engine
// instance from a YAML file using gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures one apply engine instance.
type Config struct {
	Name      string `yaml:"name"`
	Table     string `yaml:"table"`
	Partition int    `yaml:"partition"`
	RootDir   string `yaml:"rootDir"`

	SnapshotPrefix       string `yaml:"snapshotPrefix"`
	MaxRetainedSnapshots int    `yaml:"maxRetainedSnapshots"`

	OpenTimeout         time.Duration `yaml:"openTimeout"`
	StatusTimeout       time.Duration `yaml:"statusTimeout"`
	SnapshotTimeout     time.Duration `yaml:"snapshotTimeout"`
	ReadMetadataTimeout time.Duration `yaml:"readMetadataTimeout"`

	InboxSize int `yaml:"inboxSize"`
}

// defaults applied to zero-valued fields after loading.
const (
	defaultSnapshotPrefix       = "snapshot"
	defaultMaxRetainedSnapshots = 1
	defaultOpenTimeout          = 5 * time.Second
	defaultStatusTimeout        = 2 * time.Second
	defaultSnapshotTimeout      = 30 * time.Second
	defaultReadMetadataTimeout  = 2 * time.Second
	defaultInboxSize            = 256
)

// Load reads and parses a YAML config file, filling in defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = defaultSnapshotPrefix
	}
	if c.MaxRetainedSnapshots == 0 {
		c.MaxRetainedSnapshots = defaultMaxRetainedSnapshots
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
	if c.StatusTimeout == 0 {
		c.StatusTimeout = defaultStatusTimeout
	}
	if c.SnapshotTimeout == 0 {
		c.SnapshotTimeout = defaultSnapshotTimeout
	}
	if c.ReadMetadataTimeout == 0 {
		c.ReadMetadataTimeout = defaultReadMetadataTimeout
	}
	if c.InboxSize == 0 {
		c.InboxSize = defaultInboxSize
	}
}

func (c *Config) validate() error {
	if c.Table == "" {
		return fmt.Errorf("config: table is required")
	}
	if c.RootDir == "" {
		return fmt.Errorf("config: rootDir is required")
	}
	if c.Partition < 0 {
		return fmt.Errorf("config: partition must be non-negative")
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("%s-%d", c.Table, c.Partition)
	}
	return nil
}
