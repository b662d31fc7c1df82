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

package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Write a grayscale FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteMonoJPG(writer, min, max, gamma, quality)
}

// Write a grayscale FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height, err := f.Dimensions2D()
	if err != nil {
		return err
	}
	img := image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := f.Data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray(x, y, color.Gray{uint8(gray * 255)})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Colors for pattern deviations below and above 1.0. NaN pixels are black
var (
	deviationLow  = colorful.Hsl(220, 0.9, 0.5)
	deviationNone = colorful.Color{R: 1, G: 1, B: 1}
	deviationHigh = colorful.Hsl(15, 0.9, 0.5)
)

// Maps a pattern value to a false color, blending from blue for 1-amplitude
// over white for 1.0 to red for 1+amplitude
func DeviationColor(v, amplitude float32) colorful.Color {
	if math.IsNaN(float64(v)) {
		return colorful.Color{}
	}
	t := float64((v - 1) / amplitude)
	if t > 1 {
		t = 1
	} else if t < -1 {
		t = -1
	}
	if t < 0 {
		return deviationNone.BlendLab(deviationLow, -t).Clamped()
	}
	return deviationNone.BlendLab(deviationHigh, t).Clamped()
}

// Write a pattern map to a false color JPG file, see WritePatternJPG
func (f *Image) WritePatternJPGToFile(fileName string, amplitude float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WritePatternJPG(writer, amplitude, quality)
}

// Write a pattern map to JPG, coloring each pixel by its deviation from 1.0.
// Deviations of the given amplitude or more are fully saturated
func (f *Image) WritePatternJPG(writer io.Writer, amplitude float32, quality int) error {
	width, height, err := f.Dimensions2D()
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			r, g, b := DeviationColor(f.Data[yoffset+x], amplitude).RGB255()
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
