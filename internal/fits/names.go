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
	"path/filepath"
	"strings"
)

// Returns the name of an output file next to the given input, with the suffix
// inserted before the extension and the extension replaced by .fits.
// Compressed inputs like a.fits.gz yield uncompressed outputs like a-pattern.fits
func DerivedName(fileName, suffix string) string {
	return filepath.Join(filepath.Dir(fileName), BaseName(fileName)+suffix+".fits")
}

// Returns the file name without directory and without image extension(s)
func BaseName(fileName string) string {
	base := filepath.Base(fileName)
	lower := strings.ToLower(base)
	for _, ext := range []string{".gz", ".gzip"} {
		if strings.HasSuffix(lower, ext) {
			base, lower = base[:len(base)-len(ext)], lower[:len(lower)-len(ext)]
			break
		}
	}
	for _, ext := range []string{".fits", ".fit", ".fts", ".tiff", ".tif"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
