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

	"github.com/mlnoga/patfix/internal/fits"
	"github.com/mlnoga/patfix/internal/ops"
)

// Removes the fixed pattern with the stack estimator: all tiles of the image
// are self-normalized and reduced into one canonical tile. Takes one input,
// produces one output
type OpDepatternStack struct {
	ops.OpUnaryBase
	Settings
	Reduction  string `json:"reduction,omitempty"`  // mean or median
	Degenerate string `json:"degenerate,omitempty"` // abort, skip or identity
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDepatternStackDefault() }) } // register the operator for JSON decoding

func NewOpDepatternStackDefault() *OpDepatternStack { return NewOpDepatternStack(true) }

func NewOpDepatternStack(active bool) *OpDepatternStack {
	op := OpDepatternStack{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "depatternStack", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDepatternStack) UnmarshalJSON(data []byte) error {
	type defaults OpDepatternStack
	def := defaults(*NewOpDepatternStackDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpDepatternStack(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpDepatternStack) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	cfg, err := op.Settings.resolve(c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if op.Reduction != "" {
		cfg.Pattern.Reduction = op.Reduction
	}
	if op.Degenerate != "" {
		cfg.Pattern.Degenerate = op.Degenerate
	}

	width, height, err := f.Dimensions2D()
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	e, err := cfg.StackEstimator(width, height)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if e.Threads <= 0 || e.Threads > c.MaxThreads {
		e.Threads = c.MaxThreads
	}

	fmt.Fprintf(c.Log, "%d: Stacking %d tiles of %v with %s reduction ...\n", f.ID, e.Grid.NumTiles(), e.Grid, e.Reduction)
	res, err := e.Estimate(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%d: stack estimation: %w", f.ID, err)
	}
	for _, d := range res.Degenerate {
		fmt.Fprintf(c.Log, "%d: Warning: %s, %s\n", f.ID, d, e.OnDegenerate)
	}
	fmt.Fprintf(c.Log, "%d: Stacked %d of %d tiles\n", f.ID, res.TilesUsed, e.Grid.NumTiles())
	logTileShape(f, res.Tile, c)

	return correct(f, res.Tile, e.Grid, cfg, "stack", c)
}
