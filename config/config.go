// Package config loads the YAML configuration an embedder (or cmd/kitepage)
// uses to open a pool.Pool: directory, page geometry, and the ambient
// logging config.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/naveen246/kite-pagepool/logging"
)

// Config is the top-level, yaml-tagged configuration for a page pool
// instance.
type Config struct {
	// Dir is the directory holding every store's data/log file pair.
	Dir string `yaml:"dir"`
	// PageShift sets page_size = 1 << PageShift.
	PageShift uint8 `yaml:"page_shift"`
	// Capacity is page_capacity, the maximum number of buffers the pool
	// will allocate.
	Capacity int `yaml:"capacity"`

	// CreateIfMissing and ErrorIfExists are passed straight through to
	// vfs.OpenOptions for every store cmd/kitepage opens.
	CreateIfMissing bool `yaml:"create_if_missing"`
	ErrorIfExists   bool `yaml:"error_if_exists"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns a Config with reasonable development defaults: 4 KiB
// pages (page_shift 12), a 1024-buffer (4 MiB) pool.
func Default() Config {
	return Config{
		PageShift:       12,
		Capacity:        1024,
		CreateIfMissing: true,
	}
}

// Load reads and parses a YAML config file, filling in Default()'s values
// for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the config describes a usable pool.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("config: dir is required")
	}
	if c.PageShift == 0 || c.PageShift > 31 {
		return errors.Newf("config: page_shift %d out of range", c.PageShift)
	}
	if c.Capacity <= 0 {
		return errors.New("config: capacity must be positive")
	}
	return nil
}
