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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = fits.Write(w); err != nil {
		f.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Writes an in-memory FITS image to an io.Writer as 32-bit floating point
// primary HDU. Header records read from the source file are passed through.
func (fits *Image) Write(f io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "[1] Number of axis")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), fits.Naxisn[i], "[1] Axis size")
	}
	writeFloat32(&sb, "BZERO", 0, "[1] Zero offset")
	writeFloat32(&sb, "BSCALE", 1, "[1] Value scaler")
	for _, rec := range fits.Header.Records {
		writeRecord(&sb, rec)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	// Write payload data, keeping NaNs which mark invalid pixels
	return writeFloat32Array(f, fits.Data, false)
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header float32 value
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, formatFloat(value), comment)
}

// Formats a float so the header parser reads it back as a float, not an int
func formatFloat(value float32) string {
	s := strconv.FormatFloat(float64(value), 'G', -1, 32)
	if strings.Contains(s, ".") {
		return s
	}
	if e := strings.Index(s, "E"); e >= 0 {
		return s[:e] + ".0" + s[e:]
	}
	return s + ".0"
}

// Writes a verbatim header record, padded or truncated to a single line
func writeRecord(w io.Writer, rec string) {
	if len(rec) > HeaderLineSize {
		rec = rec[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", rec)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Writes FITS binary body data in network byte order, padded to a full block.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)
	valuesPerBuf := bufLen >> 2

	for block := 0; block < len(data); block += valuesPerBuf {
		size := len(data) - block
		if size > valuesPerBuf {
			size = valuesPerBuf
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			binary.BigEndian.PutUint32(buf[offset<<2:], math.Float32bits(d))
		}
		if _, err := w.Write(buf[:size<<2]); err != nil {
			return err
		}
	}

	// pad data unit with zeros
	if rest := (len(data) << 2) % fitsBlockSize; rest > 0 {
		if _, err := w.Write(make([]byte, fitsBlockSize-rest)); err != nil {
			return err
		}
	}
	return nil
}
