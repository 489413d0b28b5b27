// Package config loads run defaults from an optional YAML file. Command
// line flags override anything set here.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable run defaults.
type Config struct {
	LatentDimension  int     `yaml:"latent_dimension"`
	K                int     `yaml:"k"`
	TripletMargin    float32 `yaml:"triplet_margin"`
	Dropout          float32 `yaml:"dropout"`
	Epochs           int     `yaml:"n_epochs"`
	EpochsInit       int     `yaml:"n_epochs_init"`
	JackknifePercent float64 `yaml:"jackknife_percent"`
	Seed             int64   `yaml:"seed"`

	Name         string `yaml:"name"`
	Organization string `yaml:"organization_name"`
	Project      string `yaml:"project_name"`
}

// Default returns the built-in run defaults.
func Default() *Config {
	return &Config{
		LatentDimension: 128,
		K:               10,
		TripletMargin:   0.1,
		Dropout:         0.25,
		Epochs:          500,
		EpochsInit:      200,
		Seed:            1,
	}
}

// Load reads a YAML config file over the built-in defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return cfg, nil
}
