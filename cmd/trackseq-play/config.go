package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "~/.config/trackseq.yaml"

// fileConfig is the optional YAML config. Flags given on the command line win.
type fileConfig struct {
	SampleRate     int               `yaml:"sample_rate"`
	Channels       int               `yaml:"channels"`
	Backend        string            `yaml:"backend"`
	Volume         *float64          `yaml:"volume"`
	StallThreshold int               `yaml:"stall_threshold"`
	Macros         map[string]string `yaml:"macros"`
	EQ             []float32         `yaml:"eq"`
}

// readConfig loads path. A missing file at the default location is not an
// error.
func readConfig(path string, explicit bool) (fileConfig, error) {
	var cfg fileConfig
	full, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("expand %s: %w", path, err)
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", full, err)
	}
	if len(cfg.EQ) > 5 {
		return cfg, fmt.Errorf("%s: eq has %d bands, want at most 5", full, len(cfg.EQ))
	}
	return cfg, nil
}

// macroFlags collects repeated -D NAME=VALUE flags.
type macroFlags map[string]string

func (m macroFlags) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m macroFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("macro %q: want NAME=VALUE", s)
	}
	m[name] = value
	return nil
}
