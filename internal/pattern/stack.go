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
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/mlnoga/patfix/internal/qsort"
	"gonum.org/v1/gonum/stat"
)

// Function used to reduce the tile stack into a single canonical tile
type Reduction int

const (
	ReduceMean Reduction = iota
	ReduceMedian
)

func (r Reduction) String() string {
	switch r {
	case ReduceMean:
		return "mean"
	case ReduceMedian:
		return "median"
	}
	return fmt.Sprintf("Reduction(%d)", int(r))
}

// Parses "mean" or "median"
func ParseReduction(s string) (Reduction, error) {
	switch s {
	case "mean", "":
		return ReduceMean, nil
	case "median":
		return ReduceMedian, nil
	}
	return ReduceMean, fmt.Errorf("unknown reduction '%s', want mean or median", s)
}

// What to do with a tile which cannot be self-normalized
type DegeneratePolicy int

const (
	DegenerateAbort    DegeneratePolicy = iota // fail with a DegenerateTileError
	DegenerateSkip                             // leave the tile out of the stack
	DegenerateIdentity                         // stack an all-ones tile instead
)

func (p DegeneratePolicy) String() string {
	switch p {
	case DegenerateAbort:
		return "abort"
	case DegenerateSkip:
		return "skip"
	case DegenerateIdentity:
		return "identity"
	}
	return fmt.Sprintf("DegeneratePolicy(%d)", int(p))
}

// Parses "abort", "skip" or "identity"
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch s {
	case "abort", "":
		return DegenerateAbort, nil
	case "skip":
		return DegenerateSkip, nil
	case "identity":
		return DegenerateIdentity, nil
	}
	return DegenerateAbort, fmt.Errorf("unknown degenerate tile policy '%s', want abort, skip or identity", s)
}

// Estimates the pattern by stacking all self-normalized tiles of an image
type StackEstimator struct {
	Grid         Grid
	Shifts       ShiftTable
	Reduction    Reduction
	OnDegenerate DegeneratePolicy
	Threads      int // maximum concurrency, <=0 means GOMAXPROCS
}

// Result of a stack estimation
type StackResult struct {
	Tile       []float32              // canonical tile, TileHeight rows of TileWidth pixels
	TilesUsed  int                    // number of tiles stacked
	Degenerate []*DegenerateTileError // tiles which were skipped or replaced
}

func NewStackEstimator(g Grid, shifts ShiftTable) *StackEstimator {
	return &StackEstimator{
		Grid:         g,
		Shifts:       shifts,
		Reduction:    ReduceMean,
		OnDegenerate: DegenerateAbort,
	}
}

func (e *StackEstimator) threads() int {
	if e.Threads > 0 {
		return e.Threads
	}
	return runtime.GOMAXPROCS(0)
}

// Extracts, shift-compensates and self-normalizes all tiles of the image,
// then reduces them elementwise into the canonical tile. NaN pixels are
// ignored throughout.
func (e *StackEstimator) Estimate(data []float32) (res *StackResult, err error) {
	g := e.Grid
	if err = g.checkImage(data); err != nil {
		return nil, err
	}
	if e.Reduction != ReduceMean && e.Reduction != ReduceMedian {
		return nil, fmt.Errorf("invalid reduction %d", e.Reduction)
	}

	// extract and normalize tiles in parallel, row-major order
	numTiles := g.NumTiles()
	tiles := make([][]float32, numTiles)
	degenerate := make([]*DegenerateTileError, numTiles)
	sem := make(chan bool, e.threads())
	wg := sync.WaitGroup{}
	for i := 0; i < numTiles; i++ {
		sem <- true
		wg.Add(1)
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			row, col := i/g.XChunks, i%g.XChunks
			tile := make([]float32, g.TileSize())
			extractTileInto(tile, data, g, row, col, e.Shifts.Get(row))
			if median, ok := NormalizeTile(tile); !ok {
				degenerate[i] = &DegenerateTileError{Row: row, Col: col, Median: median}
				return
			}
			tiles[i] = tile
		}(i)
	}
	wg.Wait()

	// apply degenerate tile policy, deterministically in enumeration order
	res = &StackResult{}
	stack := make([][]float32, 0, numTiles)
	for i, tile := range tiles {
		if dte := degenerate[i]; dte != nil {
			switch e.OnDegenerate {
			case DegenerateSkip:
				res.Degenerate = append(res.Degenerate, dte)
				continue
			case DegenerateIdentity:
				res.Degenerate = append(res.Degenerate, dte)
				tile = make([]float32, g.TileSize())
				for j := range tile {
					tile[j] = 1
				}
			default:
				return nil, dte
			}
		}
		stack = append(stack, tile)
	}
	if len(stack) == 0 {
		return nil, &DegenerateTileError{Row: -1, Col: -1, Median: float32(math.NaN())}
	}
	res.TilesUsed = len(stack)
	res.Tile = e.reduce(stack)
	return res, nil
}

// Divides a tile by the median of its non-NaN pixels, in place. Returns the
// median, and false if it is zero or not finite, in which case the tile is
// left unchanged.
func NormalizeTile(tile []float32) (median float32, ok bool) {
	median = qsort.NaNMedianFloat32(tile, nil)
	m := float64(median)
	if median == 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return median, false
	}
	for i, v := range tile {
		tile[i] = v / median
	}
	return median, true
}

// Reduces the stack elementwise, in parallel batches of pixels
func (e *StackEstimator) reduce(stack [][]float32) []float32 {
	size := len(stack[0])
	res := make([]float32, size)

	numBatches := 4 * e.threads()
	batchSize := (size + numBatches - 1) / numBatches
	sem := make(chan bool, e.threads())
	wg := sync.WaitGroup{}
	for lower := 0; lower < size; lower += batchSize {
		upper := lower + batchSize
		if upper > size {
			upper = size
		}
		sem <- true
		wg.Add(1)
		go func(lower, upper int) {
			defer func() { <-sem; wg.Done() }()
			if e.Reduction == ReduceMedian {
				reduceMedian(stack, lower, upper, res)
			} else {
				reduceMean(stack, lower, upper, res)
			}
		}(lower, upper)
	}
	wg.Wait()
	return res
}

// NaN-skipping mean across the stack for pixels [lower, upper)
func reduceMean(stack [][]float32, lower, upper int, res []float32) {
	gathered := make([]float64, 0, len(stack))
	for i := lower; i < upper; i++ {
		gathered = gathered[:0]
		for _, tile := range stack {
			if v := tile[i]; !math.IsNaN(float64(v)) {
				gathered = append(gathered, float64(v))
			}
		}
		if len(gathered) == 0 {
			res[i] = float32(math.NaN())
			continue
		}
		res[i] = float32(stat.Mean(gathered, nil))
	}
}

// NaN-skipping median across the stack for pixels [lower, upper)
func reduceMedian(stack [][]float32, lower, upper int, res []float32) {
	column := make([]float32, len(stack))
	buffer := make([]float32, 0, len(stack))
	for i := lower; i < upper; i++ {
		for j, tile := range stack {
			column[j] = tile[i]
		}
		res[i] = qsort.NaNMedianFloat32(column, buffer)
	}
}
