// Package config loads the CLI configuration from YAML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// DefaultFile is read from the working directory when no config is named.
const DefaultFile = "yieldtree.yaml"

// MaxFileSize bounds a configuration file.
const MaxFileSize = 1 << 20

// Config is the CLI configuration.
type Config struct {
	Tool     string   `yaml:"tool"`
	Keymap   string   `yaml:"keymap"`
	Display  Display  `yaml:"display"`
	Scan     Scan     `yaml:"scan"`
	Log      Log      `yaml:"log"`
	Snapshot Snapshot `yaml:"snapshot"`
}

type Display struct {
	MaxChildren int `yaml:"max_children"`
}

type Scan struct {
	Sort bool `yaml:"sort"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Snapshot struct {
	Table string `yaml:"table"`
}

// Default returns the embedded defaults.
func Default() Config {
	var c Config
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return c
}

// Load overlays the file at path on the defaults. Files ending in .hcl are read
// as HCL, anything else as YAML. An empty path returns the defaults; a named
// file that does not exist is an error.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return c, fmt.Errorf("config %s: %d bytes exceeds %d", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		err = ParseHCL(path, data, &c)
	} else {
		err = Parse(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// LoadOptional is Load for a default location: a missing file yields the defaults.
func LoadOptional(path string) (Config, error) {
	c, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Parse decodes data over c and validates the result.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks field values.
func (c Config) Validate() error {
	switch strings.ToLower(c.Tool) {
	case "exosims", "ayo":
	default:
		return fmt.Errorf("tool must be exosims or ayo, got %q", c.Tool)
	}
	if c.Display.MaxChildren < 0 {
		return fmt.Errorf("display.max_children must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level maps log.level to a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
