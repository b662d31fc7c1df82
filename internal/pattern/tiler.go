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

// Maps row i of an n-row tile to row (i+shift) mod n
func rolledRow(i, shift, n int) int {
	r := (i + shift) % n
	if r < 0 {
		r += n
	}
	return r
}

// Circularly shifts the rows of a tile with the given width, returning a new
// slice. Positive shifts move rows downwards, rows pushed off the bottom
// reappear at the top.
func Roll(tile []float32, width, shift int) []float32 {
	height := len(tile) / width
	res := make([]float32, len(tile))
	for y := 0; y < height; y++ {
		to := rolledRow(y, shift, height) * width
		copy(res[to:to+width], tile[y*width:y*width+width])
	}
	return res
}

// Copies the tile at the given grid cell out of the image, and rolls it
// vertically by the shift for its tile row. The result never aliases data.
func ExtractTile(data []float32, g Grid, row, col int, shifts ShiftTable) ([]float32, error) {
	if err := g.checkImage(data); err != nil {
		return nil, err
	}
	if err := g.checkCell(row, col); err != nil {
		return nil, err
	}
	tile := make([]float32, g.TileSize())
	extractTileInto(tile, data, g, row, col, shifts.Get(row))
	return tile, nil
}

func extractTileInto(tile, data []float32, g Grid, row, col, shift int) {
	mx, my := g.TileWidth, g.TileHeight
	x0, y0 := col*mx, row*my
	for y := 0; y < my; y++ {
		src := (y0+y)*g.Width + x0
		dst := rolledRow(y, shift, my) * mx
		copy(tile[dst:dst+mx], data[src:src+mx])
	}
}

// Writes a tile-sized pattern into the given grid cell of dest, after rolling
// it back by the negative shift for its tile row. Exact inverse of ExtractTile.
func ScatterTile(pattern, dest []float32, g Grid, row, col int, shifts ShiftTable) error {
	if err := g.checkImage(dest); err != nil {
		return err
	}
	if err := g.checkTile(pattern); err != nil {
		return err
	}
	if err := g.checkCell(row, col); err != nil {
		return err
	}
	scatterTileFrom(dest, pattern, g, row, col, -shifts.Get(row))
	return nil
}

func scatterTileFrom(dest, pattern []float32, g Grid, row, col, shift int) {
	mx, my := g.TileWidth, g.TileHeight
	x0, y0 := col*mx, row*my
	for y := 0; y < my; y++ {
		dst := (y0+rolledRow(y, shift, my))*g.Width + x0
		copy(dest[dst:dst+mx], pattern[y*mx:y*mx+mx])
	}
}
