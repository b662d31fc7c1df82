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

func TestNewGrid(t *testing.T) {
	tcs := []struct {
		w, h, mx, my     int
		xChunks, yChunks int
		ok               bool
	}{
		{1160, 1160, 290, 290, 4, 4, true},
		{1200, 1000, 290, 290, 4, 3, true},
		{290, 290, 290, 290, 1, 1, true},
		{289, 1000, 290, 290, 0, 0, false},
		{1000, 289, 290, 290, 0, 0, false},
		{100, 100, 0, 10, 0, 0, false},
		{100, 100, 10, -1, 0, 0, false},
		{0, 100, 10, 10, 0, 0, false},
	}
	for _, tc := range tcs {
		g, err := NewGrid(tc.w, tc.h, tc.mx, tc.my)
		if !tc.ok {
			var sme *ShapeMismatchError
			if !errors.As(err, &sme) {
				t.Errorf("NewGrid(%d,%d,%d,%d) err=%v; want ShapeMismatchError", tc.w, tc.h, tc.mx, tc.my, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewGrid(%d,%d,%d,%d) err=%s; want nil", tc.w, tc.h, tc.mx, tc.my, err)
			continue
		}
		if g.XChunks != tc.xChunks || g.YChunks != tc.yChunks {
			t.Errorf("NewGrid(%d,%d,%d,%d) chunks=%dx%d; want %dx%d", tc.w, tc.h, tc.mx, tc.my,
				g.XChunks, g.YChunks, tc.xChunks, tc.yChunks)
		}
	}
}

func TestGridRemainder(t *testing.T) {
	g, _ := NewGrid(1200, 1000, 290, 290)
	cols, rows := g.Remainder()
	if cols != 40 || rows != 130 {
		t.Errorf("remainder=%dx%d; want 40x130", cols, rows)
	}
	if !g.Covers(1159, 869) {
		t.Errorf("covers(1159,869)=false; want true")
	}
	if g.Covers(1160, 0) || g.Covers(0, 870) || g.Covers(-1, 0) {
		t.Errorf("covers remainder pixel; want false")
	}
}

func TestParseShiftTable(t *testing.T) {
	tcs := []struct {
		in   string
		want ShiftTable
		ok   bool
	}{
		{"", ShiftTable{}, true},
		{"0:-4,1:+2,2:+3,3:+2,4:-4", DefaultShiftTable(), true},
		{" 7 : 1 , 2:0", ShiftTable{7: 1, 2: 0}, true},
		{"0:1,0:2", nil, false},
		{"-1:3", nil, false},
		{"1", nil, false},
		{"a:1", nil, false},
		{"1:b", nil, false},
	}
	for _, tc := range tcs {
		s, err := ParseShiftTable(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("ParseShiftTable(%q) err=%v; want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if !tc.ok {
			continue
		}
		if len(s) != len(tc.want) {
			t.Errorf("ParseShiftTable(%q)=%v; want %v", tc.in, s, tc.want)
		}
		for row, shift := range tc.want {
			if s.Get(row) != shift {
				t.Errorf("ParseShiftTable(%q)[%d]=%d; want %d", tc.in, row, s.Get(row), shift)
			}
		}
	}
}

func TestShiftTableString(t *testing.T) {
	if s := DefaultShiftTable().String(); s != "0:-4,1:2,2:3,3:2,4:-4" {
		t.Errorf("string=%q; want %q", s, "0:-4,1:2,2:3,3:2,4:-4")
	}
	var nilTable ShiftTable
	if nilTable.Get(3) != 0 {
		t.Errorf("nil table shift=%d; want 0", nilTable.Get(3))
	}
}
