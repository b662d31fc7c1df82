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

package depattern

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/fits"
	"github.com/mlnoga/patfix/internal/ops"
	"github.com/mlnoga/patfix/internal/pattern"
)

// Name of the profile chart page for the given input file
func ProfilesFileName(fileName string) string {
	return filepath.Join(filepath.Dir(fileName), "pattern-noise-xy-"+fits.BaseName(fileName)+".html")
}

func writeProfiles(f *fits.Image, p *pattern.Profiles, cfg *config.Config, c *ops.Context) error {
	name := f.FileName
	if name == "" {
		name = fmt.Sprintf("image%d.fits", f.ID)
	}
	fileName := ProfilesFileName(name)
	if c.RestrictPaths && !ops.IsPathAllowed(fileName) {
		return fmt.Errorf("%d: profile file %s outside current directory tree", f.ID, fileName)
	}
	fmt.Fprintf(c.Log, "%d: Writing profile charts to %s ...\n", f.ID, fileName)

	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("%d: error creating file %s: %w", f.ID, fileName, err)
	}
	w := bufio.NewWriter(file)
	err = WriteProfilesHTML(w, p, fits.BaseName(name), cfg.Output.ProfileMin, cfg.Output.ProfileMax)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%d: error writing file %s: %w", f.ID, fileName, err)
	}
	return nil
}

// Writes an HTML page with two line charts: the detrended x profile of every
// horizontal chunk with their fused representative, and the same for y
func WriteProfilesHTML(w io.Writer, p *pattern.Profiles, title string, yMin, yMax float32) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, profilesHeader, html.EscapeString(title))
	bw.WriteString("var xData = ")
	writeSeries(bw, p.XSegments, p.XRep)
	bw.WriteString(";\nvar yData = ")
	writeSeries(bw, p.YSegments, p.YRep)
	fmt.Fprintf(bw, ";\nvar yMin = %g, yMax = %g;\n", yMin, yMax)
	bw.WriteString(profilesTrailer)
	return bw.Flush()
}

// Writes a chart data array: one row per pixel offset, one column per chunk
// plus the representative. NaN values become null
func writeSeries(w *bufio.Writer, segments [][]float32, rep []float32) {
	w.WriteString("[  ['Pixel'")
	for i := range segments {
		fmt.Fprintf(w, ",'Chunk %d'", i)
	}
	w.WriteString(",'Fused']\n")
	for j, r := range rep {
		fmt.Fprintf(w, "  ,[%d", j)
		for _, seg := range segments {
			writeValue(w, seg[j])
		}
		writeValue(w, r)
		w.WriteString("]\n")
	}
	w.WriteString("]")
}

func writeValue(w *bufio.Writer, v float32) {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		w.WriteString(",null")
		return
	}
	fmt.Fprintf(w, ",%f", v)
}

const profilesHeader = `<html>
  <head>
    <title>Pattern noise profiles %s</title>
    <script type="text/javascript" src="https://www.gstatic.com/charts/loader.js"></script>
  </head>
  <body>
    <div id="xChart" style="width: 100%%; height: 48%%"></div>
    <div id="yChart" style="width: 100%%; height: 48%%"></div>
  </body>
  <script type="text/javascript">
google.charts.load('current', {'packages':['corechart']});
google.charts.setOnLoadCallback(drawCharts);

`

const profilesTrailer = `
function seriesOptions(d) {
  var series = {};
  var last = d[0].length - 2;
  for (let i = 0; i < last; i++) {
    series[i] = { lineWidth: 1, color: '#bbbbbb', visibleInLegend: false };
  }
  series[last] = { lineWidth: 2, color: '#d03010' };
  return series;
}

function drawChart(elementId, title, d) {
  var options = {
    title: title,
    explorer: {
      axis: 'horizontal',
      action: ['dragToZoom', 'rightClickToReset'],
      keepInBounds: true,
      maxZoomIn: 0.01
    },
    vAxis: { viewWindow: { min: yMin, max: yMax } },
    interpolateNulls: false,
    series: seriesOptions(d),
    legend: { position: 'bottom' }
  };
  var chart = new google.visualization.LineChart(document.getElementById(elementId));
  chart.draw(google.visualization.arrayToDataTable(d), options);
}

function drawCharts() {
  drawChart('xChart', 'X profile', xData);
  drawChart('yChart', 'Y profile', yData);
}

  </script>
</html>
`
