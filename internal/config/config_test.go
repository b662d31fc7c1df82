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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/patfix/internal/pattern"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pattern.TileWidth != 290 || cfg.Pattern.TileHeight != 290 || cfg.Pattern.Degree != 2 {
		t.Errorf("pattern=%+v; want 290x290 degree 2", cfg.Pattern)
	}
	if s := cfg.ShiftTable().String(); s != pattern.DefaultShiftTable().String() {
		t.Errorf("shifts=%s; want %s", s, pattern.DefaultShiftTable())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instrument.yaml")
	yml := `
pattern:
  tileWidth: 128
  shifts:
    1: -3
  reduction: median
output:
  preview: jpg
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pattern.TileWidth != 128 || cfg.Pattern.TileHeight != 290 {
		t.Errorf("tile=%dx%d; want 128x290", cfg.Pattern.TileWidth, cfg.Pattern.TileHeight)
	}
	if len(cfg.Pattern.Shifts) != 1 || cfg.Pattern.Shifts[1] != -3 {
		t.Errorf("shifts=%v; want only 1:-3", cfg.Pattern.Shifts)
	}
	if cfg.Output.Preview != "jpg" || cfg.Output.CorrectedSuffix != "-patfix" {
		t.Errorf("output=%+v; want jpg preview with default suffix", cfg.Output)
	}

	e, err := cfg.StackEstimator(1000, 600)
	if err != nil {
		t.Fatal(err)
	}
	if e.Reduction != pattern.ReduceMedian || e.Grid.XChunks != 7 || e.Grid.YChunks != 2 {
		t.Errorf("estimator reduction=%s grid=%s; want median and 7x2 tiles", e.Reduction, e.Grid)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tcs := []string{
		"pattern:\n  reduction: mode\n",
		"pattern:\n  tileWidth: 0\n",
		"pattern:\n  combine: max\n",
		"watch:\n  method: guess\n",
		"pattern: [1, 2\n",
	}
	for _, yml := range tcs {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("LoadConfig(%q) err=nil; want error", yml)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pattern.Shifts = map[int]int{0: 5, 3: -1}
	cfg.Pattern.Combine = "multiplicative"
	path := filepath.Join(t.TempDir(), "sub", "cfg.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	back, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.ShiftTable().String() != "0:5,3:-1" || back.Pattern.Combine != "multiplicative" {
		t.Errorf("loaded shifts=%s combine=%s; want 0:5,3:-1 multiplicative", back.ShiftTable(), back.Pattern.Combine)
	}
	e, err := back.ProfileEstimator(600, 600)
	if err != nil {
		t.Fatal(err)
	}
	if e.Combine(2, 3) != 6 {
		t.Errorf("combine(2,3)=%f; want 6", e.Combine(2, 3))
	}
}
