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

// Package watch corrects images as they arrive in a directory, for example
// while a capture program writes a session to disk.
package watch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mlnoga/patfix/internal/fits"
)

// Processes a single newly arrived file
type ProcessFunc func(fileName string) error

// Watches one directory for new files matching a glob pattern and hands each
// of them to Process once it has stopped changing. Files are processed one at
// a time, in order of arrival.
type Watcher struct {
	Dir      string
	Pattern  string        // glob on the base name, e.g. *.fits
	Skip     []string      // base name suffixes of our own outputs, e.g. -pattern
	Settle   time.Duration // quiet time after the last write before a file is processed
	Existing bool          // also process matching files present at startup
	Process  ProcessFunc
	Log      io.Writer

	watcher *fsnotify.Watcher
	pending map[string]time.Time
	done    map[string]bool
}

// Creates a watcher and starts listening for events in dir
func New(dir, pattern string, skip []string, process ProcessFunc, log io.Writer) (*Watcher, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		Dir:     dir,
		Pattern: pattern,
		Skip:    skip,
		Settle:  2 * time.Second,
		Process: process,
		Log:     log,
		watcher: fsw,
		pending: map[string]time.Time{},
		done:    map[string]bool{},
	}, nil
}

// Reports whether a file should be processed: its base name matches the
// pattern and it is not one of our own outputs
func (w *Watcher) Matches(fileName string) bool {
	base := filepath.Base(fileName)
	if ok, _ := filepath.Match(w.Pattern, base); !ok {
		return false
	}
	stem := fits.BaseName(base)
	for _, s := range w.Skip {
		if s != "" && strings.HasSuffix(stem, s) {
			return false
		}
	}
	return true
}

// Processes files until the context is cancelled. Errors from Process are
// logged and do not stop the watcher. Closes the underlying watcher on return
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	fmt.Fprintf(w.Log, "Watching %s for %s ...\n", w.Dir, w.Pattern)

	if w.Existing {
		matches, err := filepath.Glob(filepath.Join(w.Dir, w.Pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if w.Matches(m) {
				w.pending[m] = time.Time{}
			}
		}
	}

	tick := w.Settle / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.Matches(event.Name) || w.done[event.Name] {
				continue
			}
			w.pending[event.Name] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.Log, "Watcher error: %s\n", err)

		case now := <-ticker.C:
			for _, fileName := range w.settled(now) {
				if ctx.Err() != nil {
					return nil
				}
				delete(w.pending, fileName)
				w.done[fileName] = true
				fmt.Fprintf(w.Log, "New file %s\n", fileName)
				if err := w.Process(fileName); err != nil {
					fmt.Fprintf(w.Log, "Error: %s\n", err)
				}
			}
		}
	}
}

// Returns pending files without writes for the settle time, oldest first
func (w *Watcher) settled(now time.Time) []string {
	var res []string
	for fileName, last := range w.pending {
		if now.Sub(last) >= w.Settle {
			res = append(res, fileName)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		ti, tj := w.pending[res[i]], w.pending[res[j]]
		if ti.Equal(tj) {
			return res[i] < res[j]
		}
		return ti.Before(tj)
	})
	return res
}
