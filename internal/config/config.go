// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads instrument profiles from YAML files. A profile holds
// the tile geometry and estimation settings for one detector, so several
// instruments can be processed side by side with different settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mlnoga/patfix/internal/pattern"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pattern estimation parameters
	Pattern struct {
		// TileWidth and TileHeight give the size of one repeating tile in pixels
		TileWidth  int `yaml:"tileWidth"`
		TileHeight int `yaml:"tileHeight"`

		// Shifts maps tile rows to vertical circular shifts in pixels
		Shifts map[int]int `yaml:"shifts"`

		// Degree of the detrending polynomial for the profile estimator
		Degree int `yaml:"degree"`

		// Reduction across the tile stack: mean or median
		Reduction string `yaml:"reduction"`

		// Combine fuses x and y profiles: additive or multiplicative
		Combine string `yaml:"combine"`

		// Degenerate tile policy for the stack estimator: abort, skip or identity
		Degenerate string `yaml:"degenerate"`
	} `yaml:"pattern"`

	// Processing parameters
	Processing struct {
		// Threads bounds concurrency, 0 means all cores
		Threads int `yaml:"threads"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Suffixes inserted before the extension of derived output files
		PatternSuffix   string `yaml:"patternSuffix"`
		CorrectedSuffix string `yaml:"correctedSuffix"`

		// Preview format for the pattern map: none, jpg or tif
		Preview string `yaml:"preview"`

		// Deviation from 1.0 shown at full saturation in the JPG preview
		PreviewAmplitude float32 `yaml:"previewAmplitude"`

		// Profiles writes the profile diagnostics page for the profile estimator
		Profiles bool `yaml:"profiles"`

		// Vertical axis range of the profile charts
		ProfileMin float32 `yaml:"profileMin"`
		ProfileMax float32 `yaml:"profileMax"`
	} `yaml:"output"`

	// Directory watcher parameters
	Watch struct {
		// Glob pattern for new files, relative to the watched directory
		Pattern string `yaml:"pattern"`

		// Estimator for new files: stack or profile
		Method string `yaml:"method"`
	} `yaml:"watch"`

	// HTTP server parameters
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pattern.TileWidth = 290
	cfg.Pattern.TileHeight = 290
	cfg.Pattern.Shifts = pattern.DefaultShiftTable()
	cfg.Pattern.Degree = 2
	cfg.Pattern.Reduction = pattern.ReduceMean.String()
	cfg.Pattern.Combine = "additive"
	cfg.Pattern.Degenerate = pattern.DegenerateAbort.String()

	cfg.Processing.Threads = runtime.NumCPU()

	cfg.Output.PatternSuffix = "-pattern"
	cfg.Output.CorrectedSuffix = "-patfix"
	cfg.Output.Preview = "none"
	cfg.Output.PreviewAmplitude = 0.1
	cfg.Output.Profiles = false
	cfg.Output.ProfileMin = 0.85
	cfg.Output.ProfileMax = 1.15

	cfg.Watch.Pattern = "*.fits"
	cfg.Watch.Method = "stack"

	cfg.Server.Addr = ":8080"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML. A shift table in the file replaces the default one entirely
	cfg.Pattern.Shifts = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if cfg.Pattern.Shifts == nil {
		cfg.Pattern.Shifts = pattern.DefaultShiftTable()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Checks that all enumerated settings parse and all sizes are sensible
func (cfg *Config) Validate() error {
	if cfg.Pattern.TileWidth <= 0 || cfg.Pattern.TileHeight <= 0 {
		return fmt.Errorf("tile size %dx%d must be positive", cfg.Pattern.TileWidth, cfg.Pattern.TileHeight)
	}
	if cfg.Pattern.Degree < 0 {
		return fmt.Errorf("degree %d must not be negative", cfg.Pattern.Degree)
	}
	for row := range cfg.Pattern.Shifts {
		if row < 0 {
			return fmt.Errorf("shift for negative tile row %d", row)
		}
	}
	if _, err := pattern.ParseReduction(cfg.Pattern.Reduction); err != nil {
		return err
	}
	if _, err := pattern.ParseCombiner(cfg.Pattern.Combine); err != nil {
		return err
	}
	if _, err := pattern.ParseDegeneratePolicy(cfg.Pattern.Degenerate); err != nil {
		return err
	}
	switch cfg.Output.Preview {
	case "", "none", "jpg", "tif":
	default:
		return fmt.Errorf("unknown preview format '%s', want none, jpg or tif", cfg.Output.Preview)
	}
	switch cfg.Watch.Method {
	case "stack", "profile":
	default:
		return fmt.Errorf("unknown method '%s', want stack or profile", cfg.Watch.Method)
	}
	return nil
}

// Returns a copy of the configured shift table
func (cfg *Config) ShiftTable() pattern.ShiftTable {
	s := make(pattern.ShiftTable, len(cfg.Pattern.Shifts))
	for row, shift := range cfg.Pattern.Shifts {
		s[row] = shift
	}
	return s
}

// Lays the configured tile grid over an image of the given size
func (cfg *Config) Grid(width, height int) (pattern.Grid, error) {
	return pattern.NewGrid(width, height, cfg.Pattern.TileWidth, cfg.Pattern.TileHeight)
}

// Creates a stack estimator for an image of the given size
func (cfg *Config) StackEstimator(width, height int) (*pattern.StackEstimator, error) {
	g, err := cfg.Grid(width, height)
	if err != nil {
		return nil, err
	}
	e := pattern.NewStackEstimator(g, cfg.ShiftTable())
	if e.Reduction, err = pattern.ParseReduction(cfg.Pattern.Reduction); err != nil {
		return nil, err
	}
	if e.OnDegenerate, err = pattern.ParseDegeneratePolicy(cfg.Pattern.Degenerate); err != nil {
		return nil, err
	}
	e.Threads = cfg.Processing.Threads
	return e, nil
}

// Creates a profile estimator for an image of the given size
func (cfg *Config) ProfileEstimator(width, height int) (*pattern.ProfileEstimator, error) {
	g, err := cfg.Grid(width, height)
	if err != nil {
		return nil, err
	}
	e := pattern.NewProfileEstimator(g, cfg.ShiftTable())
	e.Degree = cfg.Pattern.Degree
	if e.Combine, err = pattern.ParseCombiner(cfg.Pattern.Combine); err != nil {
		return nil, err
	}
	return e, nil
}
