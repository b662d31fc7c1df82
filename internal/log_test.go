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

package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLogAlsoToFile(t *testing.T) {
	stdout := bytes.Buffer{}
	logStdout = &stdout
	defer func() { logStdout = os.Stdout }()

	fileName := filepath.Join(t.TempDir(), "patfix.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			LogPrintf("%d: line\n", i)
		}(i)
	}
	wg.Wait()
	if err := LogClose(); err != nil {
		t.Fatal(err)
	}
	LogPrintln("stdout only")

	written, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 8*len("0: line\n") {
		t.Errorf("log file has %d bytes; want %d", len(written), 8*len("0: line\n"))
	}
	if !bytes.HasSuffix(stdout.Bytes(), []byte("stdout only\n")) || stdout.Len() != len(written)+len("stdout only\n") {
		t.Errorf("stdout=%q; want file contents plus last line", stdout.String())
	}
}
