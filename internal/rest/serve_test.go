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

package rest

import (
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/fits"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	cfg.Processing.Threads = 2
	return NewRouter(cfg)
}

func request(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	w := request(testRouter(), http.MethodGet, "/api/v1/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("code=%d body=%q; want 200 pong", w.Code, w.Body.String())
	}
}

func TestDefaults(t *testing.T) {
	w := request(testRouter(), http.MethodGet, "/api/v1/defaults", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d; want 200", w.Code)
	}
	for _, want := range []string{"tileWidth: 290", "patternSuffix: -pattern"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("defaults lack %q", want)
		}
	}
}

func TestDepatternBadRequest(t *testing.T) {
	r := testRouter()
	for _, body := range []string{"{", `{"type":"noSuchOperator"}`} {
		w := request(r, http.MethodPost, "/api/v1/depattern", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: code=%d; want 400", body, w.Code)
		}
	}
}

func TestDepatternRestrictsPaths(t *testing.T) {
	w := request(testRouter(), http.MethodPost, "/api/v1/depattern",
		`{"type":"seq","steps":[{"type":"load","fileName":"/etc/passwd"},{"type":"depatternStack"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d; want 200 with streamed error", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Error: Filename outside current directory tree") {
		t.Errorf("body=%q; want path error", w.Body.String())
	}
}

func TestDepatternPatternSuffixStaysInTree(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	work := filepath.Join(root, "work")
	if err := os.Mkdir(work, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	data := make([]float32, 40*30)
	for i := range data {
		data[i] = 100 + 5*float32(math.Sin(float64(i%10)))
	}
	if err := fits.NewImageFromNaxisn([]int32{40, 30}, data).WriteFile("light.fits"); err != nil {
		t.Fatal(err)
	}

	w := request(testRouter(), http.MethodPost, "/api/v1/depattern", `{"type":"seq","steps":[
		{"type":"load","fileName":"light.fits"},
		{"type":"depatternStack","tileWidth":10,"tileHeight":10,"shifts":"none","patternSuffix":"/../../escaped"}
	]}`)
	if !strings.Contains(w.Body.String(), "Error:") {
		t.Errorf("body=%q; want streamed error", w.Body.String())
	}
	if matches, _ := filepath.Glob(filepath.Join(root, "escaped*")); len(matches) != 0 {
		t.Errorf("wrote %v outside the working directory", matches)
	}
}

func TestDepatternSequence(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	data := make([]float32, 40*30)
	for i := range data {
		data[i] = 100 + 5*float32(math.Sin(float64(i%10)))
	}
	if err := fits.NewImageFromNaxisn([]int32{40, 30}, data).WriteFile("light.fits"); err != nil {
		t.Fatal(err)
	}

	w := request(testRouter(), http.MethodPost, "/api/v1/depattern", `{"type":"seq","steps":[
		{"type":"loadMany","filePatterns":["*.fits"]},
		{"type":"depatternStack","tileWidth":10,"tileHeight":10,"shifts":"none"},
		{"type":"save","suffix":"-patfix"}
	]}`)
	if w.Code != http.StatusOK || !strings.HasSuffix(w.Body.String(), "Done.\n") {
		t.Fatalf("code=%d body=%q; want 200 and completion", w.Code, w.Body.String())
	}
	for _, name := range []string{"light-pattern.fits", "light-patfix.fits"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("missing output: %s", err)
		}
	}
}
