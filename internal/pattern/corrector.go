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
	"math"
)

// Expands a canonical tile into a full-size pattern map. Every grid cell
// receives the tile with the shift of its tile row undone; remainder pixels
// outside the grid are 1.0 and thus left unchanged by Apply.
func BuildPatternMap(tile []float32, g Grid, shifts ShiftTable) ([]float32, error) {
	if err := g.checkTile(tile); err != nil {
		return nil, err
	}
	patternMap := make([]float32, g.Pixels())
	for i := range patternMap {
		patternMap[i] = 1
	}
	for row := 0; row < g.YChunks; row++ {
		shift := -shifts.Get(row)
		for col := 0; col < g.XChunks; col++ {
			scatterTileFrom(patternMap, tile, g, row, col, shift)
		}
	}
	return patternMap, nil
}

// Divides the image by the pattern map elementwise, returning a new image.
// Pixels where the pattern is zero become NaN, as do NaN inputs.
func Apply(data, patternMap []float32) ([]float32, error) {
	if len(data) != len(patternMap) {
		return nil, shapeMismatchf("image has %d pixels, pattern map %d", len(data), len(patternMap))
	}
	nan := float32(math.NaN())
	res := make([]float32, len(data))
	for i, v := range data {
		if p := patternMap[i]; p == 0 {
			res[i] = nan
		} else {
			res[i] = v / p
		}
	}
	return res, nil
}

// Builds the pattern map for the tile and applies it to the image
func Correct(data, tile []float32, g Grid, shifts ShiftTable) (patternMap, corrected []float32, err error) {
	if err = g.checkImage(data); err != nil {
		return nil, nil, err
	}
	if patternMap, err = BuildPatternMap(tile, g, shifts); err != nil {
		return nil, nil, err
	}
	if corrected, err = Apply(data, patternMap); err != nil {
		return nil, nil, err
	}
	return patternMap, corrected, nil
}
