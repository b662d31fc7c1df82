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

package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMatches(t *testing.T) {
	w := &Watcher{Pattern: "*.fits", Skip: []string{"-pattern", "-patfix"}}
	tests := []struct {
		name string
		want bool
	}{
		{"light.fits", true},
		{"/data/m31/light_0001.fits", true},
		{"light-pattern.fits", false},
		{"light-patfix.fits", false},
		{"light.fits.gz", false},
		{"notes.txt", false},
		{"pattern-noise-xy-light.html", false},
	}
	for _, tt := range tests {
		if got := w.Matches(tt.name); got != tt.want {
			t.Errorf("Matches(%s)=%v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(t.TempDir(), "[", nil, nil, io.Discard); err == nil {
		t.Errorf("invalid pattern accepted")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing"), "*.fits", nil, nil, io.Discard); err == nil {
		t.Errorf("missing directory accepted")
	}
}

func TestRunProcessesNewFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.fits"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}

	processed := make(chan string, 10)
	w, err := New(dir, "*.fits", []string{"-patfix"}, func(fileName string) error {
		processed <- filepath.Base(fileName)
		return nil
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	w.Settle = 50 * time.Millisecond
	w.Existing = true

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error)
	go func() { result <- w.Run(ctx) }()

	for _, name := range []string{"new.fits", "new-patfix.fits", "new.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0666); err != nil {
			t.Fatal(err)
		}
	}

	got := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case name := <-processed:
			got[name] = true
		case <-timeout:
			t.Fatalf("processed %v; want old.fits and new.fits", got)
		}
	}
	if !got["old.fits"] || !got["new.fits"] {
		t.Errorf("processed %v; want old.fits and new.fits", got)
	}

	// give outputs a chance to slip through before stopping
	time.Sleep(200 * time.Millisecond)
	cancel()
	if err := <-result; err != nil {
		t.Fatal(err)
	}
	select {
	case name := <-processed:
		t.Errorf("unexpectedly processed %s", name)
	default:
	}
}
