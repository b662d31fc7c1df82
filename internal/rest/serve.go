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
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/ops"
	_ "github.com/mlnoga/patfix/internal/ops/depattern" // register depattern operators for JSON decoding
)

// Serves the HTTP API on the configured address until the listener fails
func Serve(cfg *config.Config, log io.Writer) error {
	r := NewRouter(cfg)
	fmt.Fprintf(log, "Serving HTTP API on %s ...\n", cfg.Server.Addr)
	return r.Run(cfg.Server.Addr)
}

// Creates the API routes. Operators posted to the API take their defaults from cfg
func NewRouter(cfg *config.Config) *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/defaults", func(c *gin.Context) { c.YAML(http.StatusOK, cfg) })
			v1.POST("/depattern", func(c *gin.Context) { postDepattern(c, cfg) })
		}
	}
	return r
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Runs a posted operator, typically a sequence of loadMany, a depattern
// operator and save. Streams the log to the client as plain text
func postDepattern(c *gin.Context, cfg *config.Config) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := &streamWriter{w: c.Writer}

	ctx := ops.NewContext(logWriter, cfg)
	ctx.RestrictPaths = true // remote callers stay inside the working directory

	promises, err := op.MakePromises(nil, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	if _, err = ops.MaterializeAll(promises, ctx.MaxThreads, true); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "Done.\n")
}

// Serializes concurrent log writes from operators and flushes each one to the client
type streamWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (s *streamWriter) Write(p []byte) (n int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n, err = s.w.Write(p)
	s.w.Flush()
	return n, err
}
