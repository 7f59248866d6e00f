// Package config loads the server configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/stickler/internal/logging"
)

// Defaults.
const (
	DefaultAddr           = ":6789"
	DefaultArchiveRoot    = "gems"
	DefaultMarshalVersion = "4.8"
	DefaultWorkers        = 4
)

// Config is the in-memory representation of stickler.yaml.
type Config struct {
	Addr           string   `yaml:"addr"`
	GemPath        []string `yaml:"gem_path"`
	ArchiveRoot    string   `yaml:"archive_root"`
	MarshalVersion string   `yaml:"marshal_version"`
	Watch          bool     `yaml:"watch"`
	Workers        int      `yaml:"workers"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Addr:           DefaultAddr,
		ArchiveRoot:    DefaultArchiveRoot,
		MarshalVersion: DefaultMarshalVersion,
		Workers:        DefaultWorkers,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Dir returns the absolute path to ~/.stickler/.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".stickler"), nil
}

// Path returns the absolute path to ~/.stickler/stickler.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stickler.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// Load reads the config file at path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.expand()
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expand() error {
	for i, p := range c.GemPath {
		expanded, err := ExpandPath(p)
		if err != nil {
			return err
		}
		c.GemPath[i] = expanded
	}
	root, err := ExpandPath(c.ArchiveRoot)
	if err != nil {
		return err
	}
	c.ArchiveRoot = root
	return nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr must not be empty")
	}
	if strings.TrimSpace(c.MarshalVersion) == "" {
		return errors.New("marshal_version must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// SpecDirs returns the metadata directory of each gem path.
func (c *Config) SpecDirs() []string {
	dirs := make([]string, 0, len(c.GemPath))
	for _, p := range c.GemPath {
		dirs = append(dirs, filepath.Join(p, "specifications"))
	}
	return dirs
}
