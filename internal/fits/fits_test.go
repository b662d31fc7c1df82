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
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testImage() *Image {
	img := NewImageFromNaxisn([]int32{3, 2}, []float32{1, 2.5, -3, float32(math.NaN()), 1e6, 0})
	img.Header.Records = append(img.Header.Records,
		fmt.Sprintf("%-80s", "OBJECT  = 'M31     '           / target"),
		fmt.Sprintf("%-80s", "EXPTIME =                120.0 / seconds"))
	img.Header.AddHistory("patfix test")
	return img
}

func TestWriteReadRoundTrip(t *testing.T) {
	img := testImage()
	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("file size %d; want multiple of %d", buf.Len(), fitsBlockSize)
	}

	res := NewImage()
	if err := res.Read(&buf, true, io.Discard); err != nil {
		t.Fatal(err)
	}
	if res.DimensionsToString() != "3x2" || res.Bitpix != -32 {
		t.Errorf("dimensions=%s bitpix=%d; want 3x2 and -32", res.DimensionsToString(), res.Bitpix)
	}
	for i, v := range img.Data {
		got := res.Data[i]
		if math.IsNaN(float64(v)) {
			if !math.IsNaN(float64(got)) {
				t.Errorf("data[%d]=%f; want NaN", i, got)
			}
		} else if got != v {
			t.Errorf("data[%d]=%f; want %f", i, got, v)
		}
	}
	if len(res.Header.Records) != len(img.Header.Records) {
		t.Fatalf("records=%q; want %q", res.Header.Records, img.Header.Records)
	}
	for i, rec := range img.Header.Records {
		if res.Header.Records[i] != rec {
			t.Errorf("record[%d]=%q; want %q", i, res.Header.Records[i], rec)
		}
	}
	if s := strings.TrimSpace(res.Header.Strings["OBJECT"]); s != "M31" {
		t.Errorf("OBJECT=%q; want M31", s)
	}
	if res.Exposure != 120 {
		t.Errorf("exposure=%f; want 120", res.Exposure)
	}
	if len(res.Header.History) != 1 || res.Header.History[0] != "patfix test" {
		t.Errorf("history=%q; want [patfix test]", res.Header.History)
	}
}

// Writes a header unit from the given cards, padded to a full block
func writeHeaderUnit(w io.Writer, cards ...string) {
	sb := strings.Builder{}
	for _, c := range cards {
		writeRecord(&sb, c)
	}
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()%fitsBlockSize))
	io.WriteString(w, sb.String())
}

func TestReadExtensionFallback(t *testing.T) {
	buf := bytes.Buffer{}
	writeHeaderUnit(&buf,
		"SIMPLE  =                    T",
		"BITPIX  =                    8",
		"NAXIS   =                    0",
		"EXTEND  =                    T",
	)
	writeHeaderUnit(&buf,
		"XTENSION= 'IMAGE   '",
		"BITPIX  =                   16",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    2",
		"PCOUNT  =                    0",
		"GCOUNT  =                    1",
		"BZERO   =                32768",
		"TELESCOP= 'Webb    '",
	)
	for _, v := range []int16{-32768, 0, 1, 32767} {
		binary.Write(&buf, binary.BigEndian, v)
	}
	buf.Write(make([]byte, fitsBlockSize-8))

	img := NewImage()
	if err := img.Read(&buf, true, io.Discard); err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 32768, 32769, 65535}
	for i, v := range want {
		if img.Data[i] != v {
			t.Errorf("data[%d]=%f; want %f", i, img.Data[i], v)
		}
	}
	if len(img.Header.Records) != 1 || !strings.HasPrefix(img.Header.Records[0], "TELESCOP") {
		t.Errorf("records=%q; want TELESCOP only", img.Header.Records)
	}
}

func TestReadRejectsTableExtension(t *testing.T) {
	buf := bytes.Buffer{}
	writeHeaderUnit(&buf, "SIMPLE  =                    T", "BITPIX  =                    8", "NAXIS   =                    0")
	writeHeaderUnit(&buf, "XTENSION= 'BINTABLE'", "BITPIX  =                    8", "NAXIS   =                    0")
	if err := NewImage().Read(&buf, true, io.Discard); err == nil {
		t.Errorf("err=nil; want error for BINTABLE extension")
	}
}

func TestReadGzipFile(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "light.fits.gz")
	f, err := os.Create(fileName)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if err := testImage().Write(gz); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	img, err := NewImageFromFile(fileName, 7, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if img.ID != 7 || img.Pixels != 6 || img.Data[4] != 1e6 {
		t.Errorf("id=%d pixels=%d data[4]=%f; want 7, 6, 1e6", img.ID, img.Pixels, img.Data[4])
	}
	if img.Stats == nil || img.Stats.NaNs != 1 || img.Stats.Max != 1e6 {
		t.Errorf("stats=%v; want one NaN and max 1e6", img.Stats)
	}
}

func TestDerivedName(t *testing.T) {
	tcs := []struct{ in, suffix, want string }{
		{"data/m31.fits", "-pattern", "data/m31-pattern.fits"},
		{"data/m31.FIT", "-patfix", "data/m31-patfix.fits"},
		{"m31.fits.gz", "-patfix", "m31-patfix.fits"},
		{"/tmp/a.b.fts", "-pattern", "/tmp/a.b-pattern.fits"},
		{"raw", "-pattern", "raw-pattern.fits"},
	}
	for _, tc := range tcs {
		if got := DerivedName(tc.in, tc.suffix); got != filepath.FromSlash(tc.want) {
			t.Errorf("DerivedName(%q, %q)=%q; want %q", tc.in, tc.suffix, got, tc.want)
		}
	}
	if got := BaseName("dir/x-1.fits.gz"); got != "x-1" {
		t.Errorf("BaseName=%q; want x-1", got)
	}
}

func TestFormatFloat(t *testing.T) {
	tcs := map[float32]string{0: "0.0", 1.5: "1.5", 1e6: "1.0E+06", -2: "-2.0"}
	for v, want := range tcs {
		if got := formatFloat(v); got != want {
			t.Errorf("formatFloat(%g)=%q; want %q", v, got, want)
		}
	}
}

func TestDeviationColor(t *testing.T) {
	if r, g, b := DeviationColor(1, 0.1).RGB255(); r != 255 || g != 255 || b != 255 {
		t.Errorf("color(1)=%d,%d,%d; want white", r, g, b)
	}
	if r, _, b := DeviationColor(1.2, 0.1).RGB255(); r <= b {
		t.Errorf("color(1.2) r=%d b=%d; want reddish", r, b)
	}
	if r, _, b := DeviationColor(0.8, 0.1).RGB255(); b <= r {
		t.Errorf("color(0.8) r=%d b=%d; want bluish", r, b)
	}
	if r, g, b := DeviationColor(float32(math.NaN()), 0.1).RGB255(); r+g+b != 0 {
		t.Errorf("color(NaN)=%d,%d,%d; want black", r, g, b)
	}
}

func TestPreviewWriters(t *testing.T) {
	img := testImage()
	buf := bytes.Buffer{}
	if err := img.WritePatternJPG(&buf, 0.1, 90); err != nil || buf.Len() == 0 {
		t.Errorf("jpg err=%v len=%d; want data", err, buf.Len())
	}
	buf.Reset()
	if err := img.WriteMonoTIFF16(&buf, -3, 3, 1); err != nil {
		t.Fatal(err)
	}
	back := NewImage()
	if err := back.ReadTIFF(&buf); err != nil {
		t.Fatal(err)
	}
	if back.DimensionsToString() != "3x2" || back.Data[2] != 0 || back.Data[4] != 65535 {
		t.Errorf("tiff dims=%s data=%v; want 3x2 with clamped values", back.DimensionsToString(), back.Data)
	}
}
