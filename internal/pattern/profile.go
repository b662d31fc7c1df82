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
	"fmt"
	"math"

	"github.com/mlnoga/patfix/internal/qsort"
)

// Combines the fused x and y profile values into a standard tile pixel
type Combiner func(x, y float32) float32

// Arithmetic mean of both profiles, 0.5*(x+y)
func CombineAdditive(x, y float32) float32 { return 0.5 * (x + y) }

// Product of both profiles, x*y
func CombineMultiplicative(x, y float32) float32 { return x * y }

// Parses "additive" or "multiplicative"
func ParseCombiner(s string) (Combiner, error) {
	switch s {
	case "additive", "":
		return CombineAdditive, nil
	case "multiplicative":
		return CombineMultiplicative, nil
	}
	return nil, fmt.Errorf("unknown combiner '%s', want additive or multiplicative", s)
}

// Estimates the pattern from the row and column profiles of an image, fitting
// out the large-scale trend of every chunk
type ProfileEstimator struct {
	Grid    Grid
	Shifts  ShiftTable
	Degree  int      // detrending polynomial degree
	Combine Combiner // nil means CombineAdditive
}

// Output of a profile estimation, including intermediates for diagnostics
type Profiles struct {
	StandardTile []float32   // TileHeight rows of TileWidth pixels
	XRep         []float32   // fused x profile, TileWidth entries
	YRep         []float32   // fused y profile, TileHeight entries
	XSegments    [][]float32 // detrended x profile per horizontal chunk
	YSegments    [][]float32 // shifted and detrended y profile per vertical chunk
	XProfile     []float32   // column means, Width entries
	YProfile     []float32   // row means, Height entries
}

func NewProfileEstimator(g Grid, shifts ShiftTable) *ProfileEstimator {
	return &ProfileEstimator{
		Grid:    g,
		Shifts:  shifts,
		Degree:  2,
		Combine: CombineAdditive,
	}
}

func (e *ProfileEstimator) Estimate(data []float32) (*Profiles, error) {
	g := e.Grid
	if err := g.checkImage(data); err != nil {
		return nil, err
	}
	if e.Degree < 0 {
		return nil, fmt.Errorf("polynomial degree %d must not be negative", e.Degree)
	}
	combine := e.Combine
	if combine == nil {
		combine = CombineAdditive
	}

	p := &Profiles{
		XProfile:  ColumnMeans(data, g.Width),
		YProfile:  RowMeans(data, g.Width),
		XSegments: make([][]float32, g.XChunks),
		YSegments: make([][]float32, g.YChunks),
	}

	mx, my := g.TileWidth, g.TileHeight
	for c := range p.XSegments {
		seg, err := Detrend(p.XProfile[c*mx:c*mx+mx], e.Degree)
		if err != nil {
			return nil, chunkError(err, "x", c)
		}
		p.XSegments[c] = seg
	}
	for c := range p.YSegments {
		rolled := Roll(p.YProfile[c*my:c*my+my], 1, e.Shifts.Get(c))
		seg, err := Detrend(rolled, e.Degree)
		if err != nil {
			return nil, chunkError(err, "y", c)
		}
		p.YSegments[c] = seg
	}

	p.XRep, p.YRep = fuse(p.XSegments), fuse(p.YSegments)

	p.StandardTile = make([]float32, g.TileSize())
	for i, y := range p.YRep {
		row := p.StandardTile[i*mx : i*mx+mx]
		for j, x := range p.XRep {
			row[j] = combine(x, y)
		}
	}
	return p, nil
}

// Records axis and chunk on insufficient data errors
func chunkError(err error, axis string, chunk int) error {
	var ide *InsufficientDataError
	if errors.As(err, &ide) {
		ide.Axis, ide.Chunk = axis, chunk
		return ide
	}
	return fmt.Errorf("%s chunk %d: %w", axis, chunk, err)
}

// NaN-skipping mean of every column of a row-major image. Columns without
// valid pixels are NaN
func ColumnMeans(data []float32, width int) []float32 {
	sums, counts := make([]float64, width), make([]int, width)
	for start := 0; start+width <= len(data); start += width {
		for x, v := range data[start : start+width] {
			if !math.IsNaN(float64(v)) {
				sums[x] += float64(v)
				counts[x]++
			}
		}
	}
	return means(sums, counts)
}

// NaN-skipping mean of every row of a row-major image. Rows without valid
// pixels are NaN
func RowMeans(data []float32, width int) []float32 {
	height := len(data) / width
	sums, counts := make([]float64, height), make([]int, height)
	for y := range sums {
		for _, v := range data[y*width : y*width+width] {
			if !math.IsNaN(float64(v)) {
				sums[y] += float64(v)
				counts[y]++
			}
		}
	}
	return means(sums, counts)
}

func means(sums []float64, counts []int) []float32 {
	res := make([]float32, len(sums))
	for i, s := range sums {
		if counts[i] == 0 {
			res[i] = float32(math.NaN())
		} else {
			res[i] = float32(s / float64(counts[i]))
		}
	}
	return res
}

// Fits a polynomial of the given degree against pixel index 0..len(seg)-1
// and returns a new segment divided by the fitted curve. NaN entries are left
// out of the fit and stay NaN.
func Detrend(seg []float32, degree int) ([]float32, error) {
	xs, ys := make([]float64, len(seg)), make([]float64, len(seg))
	for i, v := range seg {
		xs[i], ys[i] = float64(i), float64(v)
	}
	poly, err := FitPolynomial(xs, ys, degree)
	if err != nil {
		return nil, err
	}
	res := make([]float32, len(seg))
	for i, v := range seg {
		res[i] = float32(float64(v) / poly.Eval(float64(i)))
	}
	return res, nil
}

// Elementwise NaN-skipping median across equally long segments
func fuse(segments [][]float32) []float32 {
	if len(segments) == 0 {
		return nil
	}
	res := make([]float32, len(segments[0]))
	column := make([]float32, len(segments))
	buffer := make([]float32, 0, len(segments))
	for i := range res {
		for c, seg := range segments {
			column[c] = seg[i]
		}
		res[i] = qsort.NaNMedianFloat32(column, buffer)
	}
	return res
}
