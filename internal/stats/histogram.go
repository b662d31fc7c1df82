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

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of the non-NaN data between min and max into given bins.
// Values outside [min, max] are clamped into the first or last bin
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		if math.IsNaN(float64(d)) {
			continue
		}
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	if maxIndex == len(bins)-1 {
		maxIndex-- // average with the left neighbour instead
	}

	x = min + (float32(maxIndex)+0.5)*(max-min)/float32(len(bins)-1)
	y = 0.5 * float32(bins[maxIndex]+bins[maxIndex+1])
	return x, y
}

// Calculates the mode and the standard deviation of the given histogram,
// by least squares fitting of a normal distribution
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)
	binWidth := (max - min) / float32(len(bins)-1)

	// Now minimize the distance between the histogram and a normal distribution
	sigma0 := 5.0 * float64(binWidth)
	x0 := []float64{float64(peakVal) * sigma0 * math.Sqrt(2*math.Pi), float64(peak), sigma0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0

			for i, y := range bins {
				x := float64(min) + (float64(i)+0.5)*float64(binWidth)

				xmusig := (x - mu) / sigma
				yPredict := scaler * math.Exp(-0.5*xmusig*xmusig)

				diff := float64(y) - yPredict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}

// Estimates mode and standard deviation of the non-NaN data from a histogram
// with the given number of bins spanning the data range
func ModeStdDev(data []float32, numBins int) (mode, stdDev float32, err error) {
	if numBins < 2 {
		return 0, 0, fmt.Errorf("need at least 2 histogram bins, got %d", numBins)
	}
	s := CalcBasicStats(data)
	if s.Valid == 0 {
		return 0, 0, fmt.Errorf("no valid data")
	}
	if s.Min == s.Max {
		return s.Min, 0, nil
	}
	bins := make([]int32, numBins)
	Histogram(data, s.Min, s.Max, bins)
	return GetModeStdDevFromHistogram(bins, s.Min, s.Max)
}
