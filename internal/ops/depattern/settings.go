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

package depattern

import (
	"fmt"
	"strings"

	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/fits"
	"github.com/mlnoga/patfix/internal/ops"
	"github.com/mlnoga/patfix/internal/pattern"
	"github.com/mlnoga/patfix/internal/stats"
)

// Settings shared by the depattern operators. Zero values fall back to the
// instrument profile of the operator context
type Settings struct {
	TileWidth     int    `json:"tileWidth,omitempty"`
	TileHeight    int    `json:"tileHeight,omitempty"`
	Shifts        string `json:"shifts,omitempty"`        // row:shift pairs like "0:-4,1:2", or "none"
	PatternSuffix string `json:"patternSuffix,omitempty"` // suffix of the saved pattern map, "none" to skip saving
	Preview       string `json:"preview,omitempty"`       // pattern map preview: none, jpg or tif
}

// Returns the context profile with these settings applied on top
func (s *Settings) resolve(c *ops.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if c.Config != nil {
		*cfg = *c.Config
	}
	if s.TileWidth != 0 {
		cfg.Pattern.TileWidth = s.TileWidth
	}
	if s.TileHeight != 0 {
		cfg.Pattern.TileHeight = s.TileHeight
	}
	switch s.Shifts {
	case "":
	case "none":
		cfg.Pattern.Shifts = map[int]int{}
	default:
		shifts, err := pattern.ParseShiftTable(s.Shifts)
		if err != nil {
			return nil, err
		}
		cfg.Pattern.Shifts = shifts
	}
	if strings.ContainsAny(s.PatternSuffix, `/\`) {
		return nil, fmt.Errorf("pattern suffix %q must not contain a path separator", s.PatternSuffix)
	}
	if s.PatternSuffix != "" {
		cfg.Output.PatternSuffix = s.PatternSuffix
	}
	if s.Preview != "" {
		cfg.Output.Preview = s.Preview
	}
	return cfg, cfg.Validate()
}

// Expands the canonical tile into a pattern map, divides it out of f and saves
// the pattern map with optional preview. Returns the corrected image
func correct(f *fits.Image, tile []float32, g pattern.Grid, cfg *config.Config, method string, c *ops.Context) (*fits.Image, error) {
	shifts := cfg.ShiftTable()
	patternMap, corrected, err := pattern.Correct(f.Data, tile, g, shifts)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if cols, rows := g.Remainder(); cols > 0 || rows > 0 {
		fmt.Fprintf(c.Log, "%d: Warning: %d columns and %d rows outside the tile grid are left unchanged\n", f.ID, cols, rows)
	}
	history := fmt.Sprintf("patfix %s pattern, %dx%d tiles, shifts %s", method, g.TileWidth, g.TileHeight, shifts)

	pm := fits.NewImageFromImage(f, patternMap)
	pm.Header.AddHistory(history)
	pm.Stats = stats.CalcBasicStats(patternMap)
	fmt.Fprintf(c.Log, "%d: Pattern map %v\n", f.ID, pm.Stats)
	if err := savePattern(pm, cfg, c); err != nil {
		return nil, err
	}

	out := fits.NewImageFromImage(f, corrected)
	out.Header.AddHistory(history)
	out.Stats = stats.CalcExtendedStats(corrected)
	fmt.Fprintf(c.Log, "%d: Corrected image %v\n", f.ID, out.Stats)
	return out, nil
}

// Returns a file name next to the input with the given suffix, or one derived from the image ID for unnamed images
func derivedName(f *fits.Image, suffix string) string {
	name := f.FileName
	if name == "" {
		name = fmt.Sprintf("image%d.fits", f.ID)
	}
	return fits.DerivedName(name, suffix)
}

func savePattern(pm *fits.Image, cfg *config.Config, c *ops.Context) error {
	suffix := cfg.Output.PatternSuffix
	if suffix == "" || suffix == "none" {
		return nil
	}
	fileName := derivedName(pm, suffix)
	if c.RestrictPaths && !ops.IsPathAllowed(fileName) {
		return fmt.Errorf("%d: pattern file %s outside current directory tree", pm.ID, fileName)
	}
	if err := ops.SaveImage(pm, fileName, c); err != nil {
		return err
	}

	base := strings.TrimSuffix(fileName, ".fits")
	switch cfg.Output.Preview {
	case "jpg":
		fmt.Fprintf(c.Log, "%d: Writing pattern preview to %s.jpg\n", pm.ID, base)
		if err := pm.WritePatternJPGToFile(base+".jpg", cfg.Output.PreviewAmplitude, 95); err != nil {
			return fmt.Errorf("%d: writing preview: %w", pm.ID, err)
		}
	case "tif":
		a := cfg.Output.PreviewAmplitude
		fmt.Fprintf(c.Log, "%d: Writing pattern preview to %s.tif\n", pm.ID, base)
		if err := pm.WriteMonoTIFF16ToFile(base+".tif", 1-a, 1+a, 1); err != nil {
			return fmt.Errorf("%d: writing preview: %w", pm.ID, err)
		}
	}
	return nil
}

// Logs the shape of a canonical tile: histogram mode and spread around it
func logTileShape(f *fits.Image, tile []float32, c *ops.Context) {
	mode, stdDev, err := stats.ModeStdDev(tile, 256)
	if err != nil {
		fmt.Fprintf(c.Log, "%d: Warning: cannot fit tile histogram: %s\n", f.ID, err)
		return
	}
	fmt.Fprintf(c.Log, "%d: Canonical tile mode %.4f spread %.4f\n", f.ID, mode, stdDev)
}
