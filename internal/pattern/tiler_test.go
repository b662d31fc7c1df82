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
	"testing"
)

func TestRoll(t *testing.T) {
	tile := []float32{0, 1, 2, 3, 4, 5} // 3 rows of 2
	tcs := []struct {
		shift int
		want  []float32
	}{
		{0, []float32{0, 1, 2, 3, 4, 5}},
		{1, []float32{4, 5, 0, 1, 2, 3}},
		{-1, []float32{2, 3, 4, 5, 0, 1}},
		{4, []float32{4, 5, 0, 1, 2, 3}},
		{-3, []float32{0, 1, 2, 3, 4, 5}},
	}
	for _, tc := range tcs {
		res := Roll(tile, 2, tc.shift)
		for i, v := range res {
			if v != tc.want[i] {
				t.Errorf("shift=%d res[%d]=%f; want %f", tc.shift, i, v, tc.want[i])
			}
		}
	}
}

func testImage(width, height int) []float32 {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

func TestExtractTile(t *testing.T) {
	g, err := NewGrid(12, 10, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	data := testImage(g.Width, g.Height)
	shifts := ShiftTable{0: -1, 1: 2, 2: 5}

	for row := 0; row < g.YChunks; row++ {
		for col := 0; col < g.XChunks; col++ {
			tile, err := ExtractTile(data, g, row, col, shifts)
			if err != nil {
				t.Fatalf("cell (%d,%d): %s", row, col, err)
			}
			for y := 0; y < g.TileHeight; y++ {
				ty := rolledRow(y, shifts[row], g.TileHeight)
				for x := 0; x < g.TileWidth; x++ {
					want := data[(row*g.TileHeight+y)*g.Width+col*g.TileWidth+x]
					if got := tile[ty*g.TileWidth+x]; got != want {
						t.Errorf("cell (%d,%d) source (%d,%d)=%f; want %f", row, col, x, y, got, want)
					}
				}
			}
		}
	}
}

func TestExtractTileIsCopy(t *testing.T) {
	g, _ := NewGrid(8, 8, 4, 4)
	data := testImage(g.Width, g.Height)
	tile, err := ExtractTile(data, g, 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range tile {
		tile[i] = -1
	}
	for i, v := range data {
		if v != float32(i) {
			t.Fatalf("data[%d]=%f; want %d", i, v, i)
		}
	}
}

func TestExtractScatterRoundTrip(t *testing.T) {
	g, _ := NewGrid(12, 10, 4, 3)
	data := testImage(g.Width, g.Height)
	shifts := ShiftTable{0: -1, 1: 2, 2: 5}

	dest := make([]float32, len(data))
	for row := 0; row < g.YChunks; row++ {
		for col := 0; col < g.XChunks; col++ {
			tile, _ := ExtractTile(data, g, row, col, shifts)
			if err := ScatterTile(tile, dest, g, row, col, shifts); err != nil {
				t.Fatal(err)
			}
		}
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := y*g.Width + x
			want := data[i]
			if !g.Covers(x, y) {
				want = 0
			}
			if dest[i] != want {
				t.Errorf("dest(%d,%d)=%f; want %f", x, y, dest[i], want)
			}
		}
	}
}

func TestTilerShapeErrors(t *testing.T) {
	g, _ := NewGrid(12, 10, 4, 3)
	data := testImage(g.Width, g.Height)
	var sme *ShapeMismatchError

	cells := [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 3}}
	for _, c := range cells {
		if _, err := ExtractTile(data, g, c[0], c[1], nil); !errors.As(err, &sme) {
			t.Errorf("ExtractTile cell %v err=%v; want ShapeMismatchError", c, err)
		}
	}
	if _, err := ExtractTile(data[1:], g, 0, 0, nil); !errors.As(err, &sme) {
		t.Errorf("ExtractTile short image err=%v; want ShapeMismatchError", err)
	}
	if err := ScatterTile(make([]float32, 11), data, g, 0, 0, nil); !errors.As(err, &sme) {
		t.Errorf("ScatterTile short tile err=%v; want ShapeMismatchError", err)
	}
}
