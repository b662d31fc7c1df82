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

package depattern

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/patfix/internal/config"
	"github.com/mlnoga/patfix/internal/fits"
	"github.com/mlnoga/patfix/internal/ops"
	"github.com/mlnoga/patfix/internal/pattern"
)

// Removes the fixed pattern with the profile estimator: detrended column and
// row means are fused across chunks and combined into the canonical tile.
// Takes one input, produces one output
type OpDepatternProfile struct {
	ops.OpUnaryBase
	Settings
	Degree   *int   `json:"degree,omitempty"`   // detrending polynomial degree
	Combine  string `json:"combine,omitempty"`  // additive or multiplicative
	Profiles *bool  `json:"profiles,omitempty"` // also write the profile chart page
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDepatternProfileDefault() }) } // register the operator for JSON decoding

func NewOpDepatternProfileDefault() *OpDepatternProfile { return NewOpDepatternProfile(true) }

func NewOpDepatternProfile(active bool) *OpDepatternProfile {
	op := OpDepatternProfile{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "depatternProfile", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDepatternProfile) UnmarshalJSON(data []byte) error {
	type defaults OpDepatternProfile
	def := defaults(*NewOpDepatternProfileDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpDepatternProfile(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpDepatternProfile) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	cfg, err := op.Settings.resolve(c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if op.Degree != nil {
		cfg.Pattern.Degree = *op.Degree
	}
	if op.Combine != "" {
		cfg.Pattern.Combine = op.Combine
	}
	if op.Profiles != nil {
		cfg.Output.Profiles = *op.Profiles
	}

	p, g, err := estimateProfiles(f, cfg, c)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Profiles {
		if err := writeProfiles(f, p, cfg, c); err != nil {
			return nil, err
		}
	}
	logTileShape(f, p.StandardTile, c)

	return correct(f, p.StandardTile, g, cfg, "profile", c)
}

// Runs the profile estimator configured by cfg on the image
func estimateProfiles(f *fits.Image, cfg *config.Config, c *ops.Context) (*pattern.Profiles, pattern.Grid, error) {
	width, height, err := f.Dimensions2D()
	if err != nil {
		return nil, pattern.Grid{}, fmt.Errorf("%d: %w", f.ID, err)
	}
	e, err := cfg.ProfileEstimator(width, height)
	if err != nil {
		return nil, pattern.Grid{}, fmt.Errorf("%d: %w", f.ID, err)
	}

	fmt.Fprintf(c.Log, "%d: Estimating profiles over %v with degree %d detrending ...\n", f.ID, e.Grid, e.Degree)
	p, err := e.Estimate(f.Data)
	if err != nil {
		return nil, pattern.Grid{}, fmt.Errorf("%d: profile estimation: %w", f.ID, err)
	}
	return p, e.Grid, nil
}

// Writes x and y profile charts for every image to an HTML page next to it.
// Leaves the image unchanged. Takes one input, produces one output
type OpExportProfiles struct {
	ops.OpUnaryBase
	Settings
	Degree *int     `json:"degree,omitempty"`
	YMin   *float32 `json:"yMin,omitempty"` // vertical chart range
	YMax   *float32 `json:"yMax,omitempty"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpExportProfilesDefault() }) } // register the operator for JSON decoding

func NewOpExportProfilesDefault() *OpExportProfiles { return NewOpExportProfiles(true) }

func NewOpExportProfiles(active bool) *OpExportProfiles {
	op := OpExportProfiles{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "exportProfiles", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpExportProfiles) UnmarshalJSON(data []byte) error {
	type defaults OpExportProfiles
	def := defaults(*NewOpExportProfilesDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpExportProfiles(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpExportProfiles) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	cfg, err := op.Settings.resolve(c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if op.Degree != nil {
		cfg.Pattern.Degree = *op.Degree
	}
	if op.YMin != nil {
		cfg.Output.ProfileMin = *op.YMin
	}
	if op.YMax != nil {
		cfg.Output.ProfileMax = *op.YMax
	}

	p, _, err := estimateProfiles(f, cfg, c)
	if err != nil {
		return nil, err
	}
	if err := writeProfiles(f, p, cfg, c); err != nil {
		return nil, err
	}
	return f, nil
}
