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
)

// A tile whose median is zero or not finite, so it cannot be self-normalized.
// Usually means every pixel of the tile is NaN.
type DegenerateTileError struct {
	Row    int     // tile row, i.e. vertical chunk index
	Col    int     // tile column, i.e. horizontal chunk index
	Median float32 // offending median value
}

func (e *DegenerateTileError) Error() string {
	return fmt.Sprintf("degenerate tile at row %d col %d: median %g", e.Row, e.Col, e.Median)
}

// A polynomial fit requested with fewer finite samples than the degree requires
type InsufficientDataError struct {
	Axis   string // "x" or "y" for profile segments, empty for a bare fit
	Chunk  int    // chunk index along Axis, -1 for a bare fit
	Points int    // number of finite samples available
	Degree int    // requested polynomial degree
}

func (e *InsufficientDataError) Error() string {
	if e.Axis == "" {
		return fmt.Sprintf("insufficient data: %d finite points for degree %d fit", e.Points, e.Degree)
	}
	return fmt.Sprintf("insufficient data in %s chunk %d: %d finite points for degree %d fit",
		e.Axis, e.Chunk, e.Points, e.Degree)
}

// Image, tile or pattern dimensions which cannot be reconciled with the grid
type ShapeMismatchError struct {
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	return "shape mismatch: " + e.Reason
}

func shapeMismatchf(format string, args ...interface{}) error {
	return &ShapeMismatchError{Reason: fmt.Sprintf(format, args...)}
}
