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

package pattern

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestBuildPatternMapCoverage(t *testing.T) {
	g, _ := NewGrid(10, 7, 3, 2)
	shifts := DefaultShiftTable()
	tile := make([]float32, g.TileSize())
	for i := range tile {
		tile[i] = float32(i + 2)
	}

	pm, err := BuildPatternMap(tile, g, shifts)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if v := pm[y*g.Width+x]; !g.Covers(x, y) && v != 1 {
				t.Errorf("pattern(%d,%d)=%f; want 1", x, y, v)
			}
		}
	}
	// every cell holds exactly the tile once the row shift is applied again
	for row := 0; row < g.YChunks; row++ {
		for col := 0; col < g.XChunks; col++ {
			cell, _ := ExtractTile(pm, g, row, col, shifts)
			for i, v := range cell {
				if v != tile[i] {
					t.Errorf("cell (%d,%d)[%d]=%f; want %f", row, col, i, v, tile[i])
				}
			}
		}
	}
}

func TestApply(t *testing.T) {
	nan := float32(math.NaN())
	res, err := Apply([]float32{2, 3, nan, 4}, []float32{2, 0, 1, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != 1 || !math.IsNaN(float64(res[1])) || !math.IsNaN(float64(res[2])) || res[3] != 8 {
		t.Errorf("apply=%v; want [1 NaN NaN 8]", res)
	}
	var sme *ShapeMismatchError
	if _, err := Apply([]float32{1, 2}, []float32{1}); !errors.As(err, &sme) {
		t.Errorf("err=%v; want ShapeMismatchError", err)
	}
	if _, err := BuildPatternMap([]float32{1}, Grid{TileWidth: 2, TileHeight: 2}, nil); !errors.As(err, &sme) {
		t.Errorf("err=%v; want ShapeMismatchError", err)
	}
}

// Smooth gradient times a repeating 290x290 artifact in [0.9, 1.1]
func endToEndImage(g Grid, shifts ShiftTable) (data, gradient, artifact []float32) {
	artifact = make([]float32, g.TileSize())
	for i := 0; i < g.TileHeight; i++ {
		for j := 0; j < g.TileWidth; j++ {
			artifact[i*g.TileWidth+j] = float32(1 + 0.1*math.Sin(2*math.Pi*float64(i)/29)*math.Sin(2*math.Pi*float64(j)/58))
		}
	}
	data, gradient = make([]float32, g.Pixels()), make([]float32, g.Pixels())
	for y := 0; y < g.Height; y++ {
		row := y / g.TileHeight
		ay := rolledRow(y%g.TileHeight, shifts.Get(row), g.TileHeight)
		for x := 0; x < g.Width; x++ {
			grad := float32(1000 * (1 + 0.01*float64(x)/float64(g.Width) + 0.005*float64(y)/float64(g.Height)))
			gradient[y*g.Width+x] = grad
			data[y*g.Width+x] = grad * artifact[ay*g.TileWidth+x%g.TileWidth]
		}
	}
	return data, gradient, artifact
}

func TestEndToEndStack(t *testing.T) {
	for _, shifts := range []ShiftTable{{}, DefaultShiftTable()} {
		g, err := NewGrid(1160, 1160, 290, 290)
		if err != nil {
			t.Fatal(err)
		}
		data, gradient, artifact := endToEndImage(g, shifts)

		res, err := NewStackEstimator(g, shifts).Estimate(data)
		if err != nil {
			t.Fatal(err)
		}
		pm, corrected, err := Correct(data, res.Tile, g, shifts)
		if err != nil {
			t.Fatal(err)
		}

		errs := 0
		for y := 0; y < g.Height && errs < 10; y++ {
			ay := rolledRow(y%g.TileHeight, shifts.Get(y/g.TileHeight), g.TileHeight)
			for x := 0; x < g.Width && errs < 10; x++ {
				i := y*g.Width + x
				want := float64(artifact[ay*g.TileWidth+x%g.TileWidth])
				if !scalar.EqualWithinRel(float64(pm[i]), want, 0.01) {
					t.Errorf("shifts %v pattern(%d,%d)=%f; want %f", shifts, x, y, pm[i], want)
					errs++
				}
				if !scalar.EqualWithinRel(float64(corrected[i]), float64(gradient[i]), 0.01) {
					t.Errorf("shifts %v corrected(%d,%d)=%f; want %f", shifts, x, y, corrected[i], gradient[i])
					errs++
				}
			}
		}
	}
}
