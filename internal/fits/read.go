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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/patfix/internal/stats"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Keywords describing the layout of an HDU. These are regenerated on write, never passed through
var structuralKeys = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true, "EXTEND": true,
	"PCOUNT": true, "GCOUNT": true, "BZERO": true, "BSCALE": true, "END": true,
}

func isStructuralKey(key string) bool {
	if structuralKeys[key] {
		return true
	}
	if strings.HasPrefix(key, "NAXIS") {
		_, err := strconv.Atoi(key[5:])
		return err == nil
	}
	return false
}

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, true, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Reads metadata only (fast) if readData is false.
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)

	fits.FileName = fileName
	ext := path.Ext(fileName)
	lExt := strings.ToLower(ext)

	if lExt == ".tif" || lExt == ".tiff" {
		return fits.ReadTIFF(r)
	} else if lExt == ".gz" || lExt == ".gzip" {
		// Decompress gzip if .gz or .gzip suffix is present
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%d: %w", fits.ID, err)
		}
		defer gz.Close()
		r = gz
	}

	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

// Reads the primary HDU. If it holds no data, falls back to the first
// extension, which must then be an IMAGE extension.
func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	if err = fits.Header.read(f, fits.ID, logWriter); err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
	}
	delete(fits.Header.Bools, "SIMPLE")
	if err = fits.readLayout(); err != nil {
		return err
	}

	if fits.Pixels == 0 {
		fmt.Fprintf(logWriter, "%d: Primary HDU holds no data, reading first extension\n", fits.ID)
		fits.Header = NewHeader()
		if err = fits.Header.read(f, fits.ID, logWriter); err != nil {
			return fmt.Errorf("%d: primary HDU holds no data, and no extension found: %w", fits.ID, err)
		}
		if xt := strings.TrimSpace(fits.Header.Strings["XTENSION"]); xt != "IMAGE" {
			return fmt.Errorf("%d: first extension is '%s', want IMAGE", fits.ID, xt)
		}
		delete(fits.Header.Strings, "XTENSION")
		if err = fits.readLayout(); err != nil {
			return err
		}
		if fits.Pixels == 0 {
			return fmt.Errorf("%d: first extension holds no data either", fits.ID)
		}
	}

	// check key optional fields relevant for image processing
	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	if exp, ok := fits.Header.Floats["EXPOSURE"]; ok {
		fits.Exposure = exp
	} else if exp, ok := fits.Header.Floats["EXPTIME"]; ok {
		fits.Exposure = exp
	} else if exp, ok := fits.Header.Ints["EXPTIME"]; ok {
		fits.Exposure = float32(exp)
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

// Pops BITPIX and the NAXISn keywords from the header
func (fits *Image) readLayout() (err error) {
	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = int32(0)
	if naxis > 0 {
		fits.Pixels = 1
	}
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= nai
	}
	delete(fits.Header.Ints, "PCOUNT")
	delete(fits.Header.Ints, "GCOUNT")
	return nil
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Decodes big-endian values of one BITPIX type into float32
type decoder func(buf []byte) float32

func decoderFor(bitpix int32) (dec decoder, bytesPerValue int, lossy bool, err error) {
	switch bitpix {
	case 8:
		return func(b []byte) float32 { return float32(b[0]) }, 1, false, nil
	case 16:
		return func(b []byte) float32 { return float32(int16(binary.BigEndian.Uint16(b))) }, 2, false, nil
	case 32:
		return func(b []byte) float32 { return float32(int32(binary.BigEndian.Uint32(b))) }, 4, true, nil
	case 64:
		return func(b []byte) float32 { return float32(int64(binary.BigEndian.Uint64(b))) }, 8, true, nil
	case -32:
		return func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) }, 4, false, nil
	case -64:
		return func(b []byte) float32 { return float32(math.Float64frombits(binary.BigEndian.Uint64(b))) }, 8, true, nil
	}
	return nil, 0, false, fmt.Errorf("unknown BITPIX value %d", bitpix)
}

// Read image data from file, convert to float32 data type, apply BZero offset and set BZero to 0 afterwards.
func (fits *Image) readData(r io.Reader, logWriter io.Writer) error {
	dec, bytesPerValue, lossy, err := decoderFor(fits.Bitpix)
	if err != nil {
		return fmt.Errorf("%d: %w", fits.ID, err)
	}
	if lossy {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.ID, fits.Bitpix)
	}

	fits.Data = make([]float32, int(fits.Pixels))
	valuesPerBuf := bufLen / bytesPerValue
	buf := make([]byte, valuesPerBuf*bytesPerValue)
	for dataIndex := 0; dataIndex < len(fits.Data); {
		n := len(fits.Data) - dataIndex
		if n > valuesPerBuf {
			n = valuesPerBuf
		}
		if _, err := io.ReadFull(r, buf[:n*bytesPerValue]); err != nil {
			return fmt.Errorf("%d: reading pixel data: %w", fits.ID, err)
		}
		for i := 0; i < n; i++ {
			v := dec(buf[i*bytesPerValue:])
			fits.Data[dataIndex+i] = v*fits.Bscale + fits.Bzero
		}
		dataIndex += n
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	fits.Stats = stats.CalcBasicStats(fits.Data)
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("%d: reading header: %w", id, err)
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: Cannot parse '%s', passing through\n", id, string(line))
				h.Records = append(h.Records, string(line))
			} else {
				subNames := reParser.SubexpNames()
				h.readLine(line, subNames, subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(line []byte, subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	blank := true
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			blank = false
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, strings.TrimRight(string(subValues[i]), " "))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
			case byte('k'): // key
				key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[key] = int32(val)
				}
			case byte('f'): // float
				val, err := strconv.ParseFloat(strings.Replace(string(subValues[i]), "D", "E", 1), 64)
				if err == nil {
					h.Floats[key] = float32(val)
				}
			case byte('s'): // string
				h.Strings[key] = string(subValues[i])
			case byte('d'): // date
				h.Dates[key] = string(subValues[i])
			case byte('c'): // comment
				// ignore value comments
			default:
				fmt.Fprintf(logWriter, "%d:%d:Warning:Unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
	if !blank && !h.End && !isStructuralKey(key) {
		h.Records = append(h.Records, string(line))
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + white + "(?P<H>" + rest + ")"

	commKey := "COMMENT"
	commLine := commKey + white + "(?P<C>" + rest + ")"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	// missing: CONTINUE for strings
	// missing: complex int: (nr, nr)
	// missing: complex float: (nr, nr)

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
