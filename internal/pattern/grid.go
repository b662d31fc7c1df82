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
	"sort"
	"strconv"
	"strings"
)

// A regular grid of equally sized tiles laid over an image. Trailing rows
// and columns which do not fill a whole tile are outside the grid and are
// never visited by extraction or reconstruction.
type Grid struct {
	Width      int // image width in pixels
	Height     int // image height in pixels
	TileWidth  int // tile width mx
	TileHeight int // tile height my
	XChunks    int // number of tiles horizontally, Width div TileWidth
	YChunks    int // number of tiles vertically, Height div TileHeight
}

// Creates a grid of tileWidth x tileHeight tiles over a width x height image.
// Remainder pixels are dropped. Fails if no single tile fits the image.
func NewGrid(width, height, tileWidth, tileHeight int) (Grid, error) {
	if tileWidth <= 0 || tileHeight <= 0 {
		return Grid{}, shapeMismatchf("tile size %dx%d must be positive", tileWidth, tileHeight)
	}
	if width <= 0 || height <= 0 {
		return Grid{}, shapeMismatchf("image size %dx%d must be positive", width, height)
	}
	if tileWidth > width || tileHeight > height {
		return Grid{}, shapeMismatchf("tile size %dx%d exceeds image size %dx%d", tileWidth, tileHeight, width, height)
	}
	return Grid{
		Width:      width,
		Height:     height,
		TileWidth:  tileWidth,
		TileHeight: tileHeight,
		XChunks:    width / tileWidth,
		YChunks:    height / tileHeight,
	}, nil
}

// Number of pixels in a single tile
func (g Grid) TileSize() int { return g.TileWidth * g.TileHeight }

// Number of tiles in the grid
func (g Grid) NumTiles() int { return g.XChunks * g.YChunks }

// Number of pixels in the image
func (g Grid) Pixels() int { return g.Width * g.Height }

// Returns true if pixel (x,y) lies inside a grid cell, false for remainder pixels
func (g Grid) Covers(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.XChunks*g.TileWidth && y < g.YChunks*g.TileHeight
}

// Remainder pixels dropped on the right and at the bottom
func (g Grid) Remainder() (cols, rows int) {
	return g.Width - g.XChunks*g.TileWidth, g.Height - g.YChunks*g.TileHeight
}

func (g Grid) String() string {
	rx, ry := g.Remainder()
	return fmt.Sprintf("%dx%d tiles of %dx%d pixels, dropping %d columns and %d rows",
		g.XChunks, g.YChunks, g.TileWidth, g.TileHeight, rx, ry)
}

func (g Grid) checkCell(row, col int) error {
	if row < 0 || row >= g.YChunks || col < 0 || col >= g.XChunks {
		return shapeMismatchf("cell (%d,%d) outside %dx%d grid", row, col, g.YChunks, g.XChunks)
	}
	return nil
}

func (g Grid) checkImage(data []float32) error {
	if len(data) != g.Pixels() {
		return shapeMismatchf("image has %d pixels, grid expects %dx%d=%d", len(data), g.Width, g.Height, g.Pixels())
	}
	return nil
}

func (g Grid) checkTile(tile []float32) error {
	if len(tile) != g.TileSize() {
		return shapeMismatchf("tile has %d pixels, grid expects %dx%d=%d", len(tile), g.TileWidth, g.TileHeight, g.TileSize())
	}
	return nil
}

// Vertical circular shifts per tile row. Rows not in the table are not shifted.
// Negative values shift upwards.
type ShiftTable map[int]int

// Shifts which line up the pattern peaks for the reference instrument
func DefaultShiftTable() ShiftTable {
	return ShiftTable{0: -4, 1: +2, 2: +3, 3: +2, 4: -4}
}

// Returns the shift for the given tile row, 0 if none is set
func (s ShiftTable) Get(row int) int {
	return s[row] // nil map and missing key both give 0
}

// Formats the table as comma-separated row:shift pairs in ascending row order
func (s ShiftTable) String() string {
	rows := make([]int, 0, len(s))
	for row := range s {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	b := strings.Builder{}
	for i, row := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%d", row, s[row])
	}
	return b.String()
}

// Parses comma-separated row:shift pairs like "0:-4,1:+2". Empty string gives an empty table
func ParseShiftTable(str string) (ShiftTable, error) {
	s := ShiftTable{}
	str = strings.TrimSpace(str)
	if str == "" {
		return s, nil
	}
	for _, pair := range strings.Split(str, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid shift '%s', want row:shift", pair)
		}
		row, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil || row < 0 {
			return nil, fmt.Errorf("invalid tile row '%s' in shift '%s'", kv[0], pair)
		}
		shift, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(kv[1]), "+"))
		if err != nil {
			return nil, fmt.Errorf("invalid shift value '%s' in shift '%s'", kv[1], pair)
		}
		if _, dup := s[row]; dup {
			return nil, fmt.Errorf("duplicate tile row %d in shifts", row)
		}
		s[row] = shift
	}
	return s, nil
}
