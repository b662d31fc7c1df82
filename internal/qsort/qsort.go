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

package qsort

import (
	"math"
)

// Select the kth lowest element (1-based) from an array of float32.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		// Hoare partition around the middle element
		pivot := a[(left+right)>>1]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break
			}
			a[l], a[r] = a[r], a[l]
		}

		offset := r - left + 1
		if k <= offset {
			right = r
		} else {
			left = r + 1
			k -= offset
		}
	}
	return a[left]
}

// Select the median of an array of float32. For even lengths, returns the
// mean of the two central elements. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return float32(math.NaN())
	}
	upper := QSelectFloat32(a, (n>>1)+1)
	if n&1 != 0 {
		return upper
	}
	// after selection, all elements left of the upper median are <= it
	lower := a[0]
	for _, v := range a[:n>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Appends the non-NaN values of a to buffer[:0], and returns the result
func GatherValid(buffer, a []float32) []float32 {
	buffer = buffer[:0]
	for _, v := range a {
		if !math.IsNaN(float64(v)) {
			buffer = append(buffer, v)
		}
	}
	return buffer
}

// Median of the non-NaN values in a, NaN if there are none. Does not change a.
// Uses buffer as scratch space if large enough
func NaNMedianFloat32(a, buffer []float32) float32 {
	if cap(buffer) < len(a) {
		buffer = make([]float32, 0, len(a))
	}
	valid := GatherValid(buffer, a)
	if len(valid) == 0 {
		return float32(math.NaN())
	}
	return QSelectMedianFloat32(valid)
}
