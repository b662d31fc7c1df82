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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/patfix/internal/qsort"
	"github.com/valyala/fastrand"
)

// Basic statistics on data arrays. NaN values are ignored
type Stats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Standard deviation (norm 2, sigma)

	Location float32 // Approximate median from random samples
	Scale    float32 // Approximate median absolute deviation from random samples, normalized to sigma

	Valid int // Number of non-NaN values
	NaNs  int // Number of NaN values
}

// Number of random samples for location and scale
const numSamples = 64 * 1024

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g NaNs %d",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale, s.NaNs)
}

// Calculates min, max, mean and standard deviation of the non-NaN data
func CalcBasicStats(data []float32) *Stats {
	s := &Stats{Min: float32(math.NaN()), Max: float32(math.NaN()), Mean: float32(math.NaN()), StdDev: float32(math.NaN())}
	min, max, sum := float32(math.Inf(1)), float32(math.Inf(-1)), float64(0)
	for _, v := range data {
		if math.IsNaN(float64(v)) {
			s.NaNs++
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
		s.Valid++
	}
	if s.Valid == 0 {
		return s
	}
	mean := sum / float64(s.Valid)

	variance := float64(0)
	for _, v := range data {
		if !math.IsNaN(float64(v)) {
			diff := float64(v) - mean
			variance += diff * diff
		}
	}
	s.Min, s.Max, s.Mean = min, max, float32(mean)
	s.StdDev = float32(math.Sqrt(variance / float64(s.Valid)))
	return s
}

// Calculates basic statistics, plus location and scale from random samples
func CalcExtendedStats(data []float32) *Stats {
	s := CalcBasicStats(data)
	if s.Valid == 0 {
		s.Location, s.Scale = s.Mean, s.StdDev
		return s
	}
	n := numSamples
	if s.Valid < n {
		n = s.Valid
	}
	samples := make([]float32, n)
	s.Location = FastApproxMedian(data, samples)
	s.Scale = FastApproxMAD(data, s.Location, samples) * 1.4826
	return s
}

// Fills samples with randomly drawn non-NaN values from data. Data must
// contain at least one non-NaN value
func drawSamples(data []float32, samples []float32) {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		var d float32
		for {
			d = data[rng.Uint32n(max)]
			if !math.IsNaN(float64(d)) {
				break
			}
		}
		samples[i] = d
	}
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	drawSamples(data, samples)
	return qsort.QSelectMedianFloat32(samples)
}

// Calculates fast approximate median absolute deviation from the location by subsampling.
// Uses provided samples array as scratchpad
func FastApproxMAD(data []float32, location float32, samples []float32) float32 {
	drawSamples(data, samples)
	for i, d := range samples {
		samples[i] = float32(math.Abs(float64(d - location)))
	}
	return qsort.QSelectMedianFloat32(samples)
}
