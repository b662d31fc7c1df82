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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	nl "github.com/mlnoga/patfix/internal"
	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/fits"
	"github.com/mlnoga/patfix/internal/ops"
	"github.com/mlnoga/patfix/internal/ops/depattern"
	"github.com/mlnoga/patfix/internal/pattern"
	"github.com/mlnoga/patfix/internal/rest"
	"github.com/mlnoga/patfix/internal/watch"
	"github.com/pbnjay/memory"
	"github.com/spf13/cobra"
)

// Command line state shared by all commands
type cli struct {
	cfg *config.Config
	log io.Writer

	configPath string
	logFile    string
	cpuProfile string
	profileOut *os.File

	tileWidth, tileHeight int
	threads, degree       int
	shifts                string
	reduction, combine    string
	degenerate, preview   string
}

func newRootCmd() *cobra.Command {
	c := &cli{log: nl.LogWriter}

	rootCmd := &cobra.Command{
		Use:   "patfix",
		Short: "Removes fixed pattern noise from astronomical images",
		Long: `Patfix Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Patfix estimates the repeating tile pattern of a sensor from a single FITS
image, divides it out and writes the pattern map and the corrected image
next to the input.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return c.setup(cmd, args) },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return c.teardown() },
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&c.configPath, "config", "patfix.yaml", "instrument profile `file`, defaults apply if missing")
	f.StringVar(&c.logFile, "log", "", "also save log output to `file`. %auto derives the name from the first input")
	f.StringVar(&c.cpuProfile, "cpuprofile", "", "write cpu profile to `file`")
	f.IntVar(&c.tileWidth, "tileWidth", 0, "tile width in pixels")
	f.IntVar(&c.tileHeight, "tileHeight", 0, "tile height in pixels")
	f.StringVar(&c.shifts, "shifts", "", "vertical shifts per tile row, e.g. 0:-4,1:+2, or none")
	f.IntVar(&c.threads, "threads", 0, "maximum concurrency, 0 for all cores")
	f.IntVar(&c.degree, "degree", 2, "detrending polynomial degree for the profile estimator")
	f.StringVar(&c.reduction, "reduction", "mean", "tile stack reduction, mean or median")
	f.StringVar(&c.combine, "combine", "additive", "profile combination, additive or multiplicative")
	f.StringVar(&c.degenerate, "degenerate", "abort", "degenerate tile policy, abort, skip or identity")
	f.StringVar(&c.preview, "preview", "none", "pattern map preview, none, jpg or tif")

	rootCmd.AddCommand(c.newDepatternCmd("stack", "Estimate the pattern by stacking all tiles"))
	rootCmd.AddCommand(c.newDepatternCmd("profile", "Estimate the pattern from detrended row and column profiles"))
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newConfigCmd())
	rootCmd.AddCommand(newLegalCmd())
	rootCmd.AddCommand(c.newVersionCmd())
	return rootCmd
}

// Loads the instrument profile, applies flags set on the command line
// and starts optional log file and profiling
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if err := c.applyFlags(cmd, cfg); err != nil {
		return err
	}
	c.cfg = cfg

	if c.logFile == "%auto" {
		c.logFile = ""
		if matches := globAll(args); len(matches) > 0 {
			c.logFile = strings.TrimSuffix(fits.DerivedName(matches[0], cfg.Output.CorrectedSuffix), ".fits") + ".log"
		}
	}
	if c.logFile != "" {
		if err := nl.LogAlsoToFile(c.logFile); err != nil {
			return fmt.Errorf("unable to open logfile '%s': %w", c.logFile, err)
		}
	}

	if c.cpuProfile != "" {
		if c.profileOut, err = os.Create(c.cpuProfile); err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(c.profileOut); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
	}
	return nil
}

// Overrides profile settings with flags the user set explicitly
func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("tileWidth") {
		cfg.Pattern.TileWidth = c.tileWidth
	}
	if changed("tileHeight") {
		cfg.Pattern.TileHeight = c.tileHeight
	}
	if changed("shifts") {
		if c.shifts == "none" {
			cfg.Pattern.Shifts = map[int]int{}
		} else {
			shifts, err := pattern.ParseShiftTable(c.shifts)
			if err != nil {
				return err
			}
			cfg.Pattern.Shifts = shifts
		}
	}
	if changed("threads") {
		cfg.Processing.Threads = c.threads
	}
	if changed("degree") {
		cfg.Pattern.Degree = c.degree
	}
	if changed("reduction") {
		cfg.Pattern.Reduction = c.reduction
	}
	if changed("combine") {
		cfg.Pattern.Combine = c.combine
	}
	if changed("degenerate") {
		cfg.Pattern.Degenerate = c.degenerate
	}
	if changed("preview") {
		cfg.Output.Preview = c.preview
	}
	return cfg.Validate()
}

func (c *cli) teardown() error {
	if c.profileOut != nil {
		pprof.StopCPUProfile()
		c.profileOut.Close()
	}
	nl.LogSync()
	return nil
}

// Expands file name wildcards, keeping arguments without matches for the error message downstream
func globAll(patterns []string) []string {
	var res []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil || len(matches) == 0 {
			continue
		}
		res = append(res, matches...)
	}
	return res
}

// Builds load, depattern and save steps for the given estimation method
func newSequence(method string, cfg *config.Config, load ops.Operator, profiles bool) (*ops.OpSequence, error) {
	var op ops.Operator
	switch method {
	case "stack":
		op = depattern.NewOpDepatternStack(true)
	case "profile":
		opProfile := depattern.NewOpDepatternProfile(true)
		if profiles {
			opProfile.Profiles = &profiles
		}
		op = opProfile
	default:
		return nil, fmt.Errorf("unknown method '%s', want stack or profile", method)
	}
	return ops.NewOpSequence(load, op, ops.NewOpSaveDerived(cfg.Output.CorrectedSuffix)), nil
}

// Number of files to process concurrently, bounded by threads and by the
// memory needed for images the size of the first input
func (c *cli) concurrency(ctx *ops.Context, fileNames []string) int {
	n := ctx.MaxThreads
	if len(fileNames) == 0 {
		return n
	}
	f := fits.NewImage()
	if err := f.ReadFile(fileNames[0], false, io.Discard); err != nil {
		return n
	}
	if m := ctx.ImagesInMemory(int(f.Pixels)); m < n {
		fmt.Fprintf(c.log, "Limiting concurrency to %d images for %d MiB of memory\n", m, ctx.MemoryMB)
		n = m
	}
	return n
}

func (c *cli) newDepatternCmd(method, short string) *cobra.Command {
	var profiles bool

	cmd := &cobra.Command{
		Use:   method + " img0.fits ... imgn.fits",
		Short: short,
		Long: short + `. Writes the pattern map as <name>-pattern.fits and the
corrected image as <name>-patfix.fits next to each input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			seq, err := newSequence(method, c.cfg, ops.NewOpLoadMany(args), profiles)
			if err != nil {
				return err
			}
			m, err := json.MarshalIndent(seq, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(c.log, "Running with these settings:\n%s\n", string(m))

			ctx := ops.NewContext(c.log, c.cfg)
			promises, err := seq.MakePromises(nil, ctx)
			if err != nil {
				return err
			}
			if _, err = ops.MaterializeAll(promises, c.concurrency(ctx, globAll(args)), true); err != nil {
				return err
			}
			fmt.Fprintf(c.log, "\nDone after %v\n", time.Since(start))
			return nil
		},
	}
	if method == "profile" {
		cmd.Flags().BoolVar(&profiles, "profiles", false, "also write profile charts as pattern-noise-xy-<name>.html")
	}
	return cmd
}

func (c *cli) newServeCmd() *cobra.Command {
	var (
		addr   string
		chroot string
		setuid int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve an HTTP API which runs posted operator sequences and streams the log back.

Examples:
  patfix serve --addr :8080
  curl -X POST localhost:8080/api/v1/depattern -d '{"type":"seq","steps":[
    {"type":"loadMany","filePatterns":["*.fits"]},
    {"type":"depatternStack"},
    {"type":"save","suffix":"-patfix"}]}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.Server.Addr = addr
			}
			if err := rest.MakeSandbox(chroot, setuid, c.log); err != nil {
				return err
			}
			return rest.Serve(c.cfg, c.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&chroot, "chroot", "", "change filesystem root to `dir` before serving, requires root")
	cmd.Flags().IntVar(&setuid, "setuid", -1, "change to user `id` before serving")
	return cmd
}

func (c *cli) newWatchCmd() *cobra.Command {
	var (
		filePattern string
		method      string
		existing    bool
		settle      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Correct new images as they arrive in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pattern") {
				c.cfg.Watch.Pattern = filePattern
			}
			if cmd.Flags().Changed("method") {
				c.cfg.Watch.Method = method
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			ctx := ops.NewContext(c.log, c.cfg)
			id := 0
			process := func(fileName string) error {
				seq, err := newSequence(c.cfg.Watch.Method, c.cfg, ops.NewOpLoad(id, fileName), false)
				if err != nil {
					return err
				}
				id++
				promises, err := seq.MakePromises(nil, ctx)
				if err != nil {
					return err
				}
				_, err = ops.MaterializeAll(promises, 1, true)
				return err
			}

			skip := []string{c.cfg.Output.PatternSuffix, c.cfg.Output.CorrectedSuffix}
			w, err := watch.New(args[0], c.cfg.Watch.Pattern, skip, process, c.log)
			if err != nil {
				return err
			}
			w.Existing, w.Settle = existing, settle

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return w.Run(sigCtx)
		},
	}
	cmd.Flags().StringVar(&filePattern, "pattern", "*.fits", "glob for new files")
	cmd.Flags().StringVar(&method, "method", "stack", "estimator, stack or profile")
	cmd.Flags().BoolVar(&existing, "existing", false, "also process matching files already in the directory")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "wait this long after the last write before processing a file")
	return cmd
}

func (c *cli) newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [file]",
		Short: "Write the effective instrument profile as YAML",
		Long: `Write the instrument profile, with command line flags applied, to the given
file or the --config file. Edit it to set up a new instrument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileName := c.configPath
			if len(args) > 0 {
				fileName = args[0]
			}
			if err := config.SaveConfig(c.cfg, fileName); err != nil {
				return err
			}
			fmt.Fprintf(c.log, "Wrote instrument profile to %s\n", fileName)
			return nil
		},
	}
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and platform information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.log, "Version %s\n", version)
			fmt.Fprintf(c.log, "Go %s on %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(c.log, "CPU %s, %d physical and %d logical cores, AVX2 %v\n",
				cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())
			fmt.Fprintf(c.log, "Memory %d MiB\n", memory.TotalMemory()/1024/1024)
		},
	}
}
