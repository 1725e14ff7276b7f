// Package estimate turns a detection box into a ground-plane position by
// matching it against a calibration table with a widening tolerance window.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/monitoring"
)

var logs = monitoring.For("estimate")

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid estimator parameters")

// Params controls the tolerance search.
type Params struct {
	Start         float64 // first tolerance tried, pixels
	Max           float64 // last tolerance tried (inclusive)
	Step          float64 // tolerance increment
	CertaintyBase float64 // certainty = CertaintyBase - matched tolerance
}

// DefaultParams returns the search used by the robot: 25 to 40 in steps of 3.
func DefaultParams() Params {
	return Params{Start: 25, Max: 40, Step: 3, CertaintyBase: 50}
}

// Validate requires Step > 0 and 0 <= Start <= Max.
func (p Params) Validate() error {
	if !(p.Step > 0) {
		return fmt.Errorf("%w: step must be positive, got %g", ErrInvalidParams, p.Step)
	}
	if !(p.Start >= 0) || p.Start > p.Max {
		return fmt.Errorf("%w: need 0 <= start (%g) <= max (%g)", ErrInvalidParams, p.Start, p.Max)
	}
	return nil
}

// Tolerances lists the windows tried, in order.
func (p Params) Tolerances() []float64 {
	if p.Validate() != nil {
		return nil
	}
	var out []float64
	for i := 0; ; i++ {
		t := p.Start + float64(i)*p.Step
		if t > p.Max {
			return out
		}
		out = append(out, t)
	}
}

// Estimate is a position derived from one detection.
type Estimate struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Certainty float64   `json:"certainty"`
	Timestamp time.Time `json:"timestamp"` // capture time of the source frame
	FrameSeq  uint64    `json:"frame_seq"`

	Tolerance float64 `json:"tolerance"` // window at which rows matched
	Matches   int     `json:"matches"`   // number of rows averaged
}

// Estimator matches detections against a calibration table. The table is
// read-only, so one Estimator may be used from several goroutines.
type Estimator struct {
	table  *calibration.Table
	params Params
}

// New returns an Estimator over table.
func New(table *calibration.Table, p Params) (*Estimator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		logs.Opsf("calibration table is empty; no estimates will be produced")
	}
	return &Estimator{table: table, params: p}, nil
}

// Params returns the search parameters.
func (e *Estimator) Params() Params { return e.params }

// Estimate searches tolerances from Start upward and stops at the first one
// that matches at least one row. X and Y are the plain means of the matched
// rows' positions. It returns false when no tolerance up to Max matches.
func (e *Estimator) Estimate(d detect.Detection) (*Estimate, bool) {
	target := target(d.Box)
	for _, tol := range e.params.Tolerances() {
		idx := Match(e.table, target, tol)
		if len(idx) == 0 {
			continue
		}
		xs := make([]float64, len(idx))
		ys := make([]float64, len(idx))
		for i, r := range idx {
			row := e.table.At(r)
			xs[i], ys[i] = row.XPosition, row.YPosition
		}
		est := &Estimate{
			X:         stat.Mean(xs, nil),
			Y:         stat.Mean(ys, nil),
			Certainty: e.params.CertaintyBase - tol,
			Timestamp: d.Timestamp,
			FrameSeq:  d.FrameSeq,
			Tolerance: tol,
			Matches:   len(idx),
		}
		logs.Tracef("frame %d: %d rows at tolerance %g -> (%.3f, %.3f)", d.FrameSeq, len(idx), tol, est.X, est.Y)
		return est, true
	}
	logs.Tracef("frame %d: no calibration match for %+v", d.FrameSeq, d.Box)
	return nil, false
}

func target(b detect.Box) calibration.Row {
	cx, cy := b.Center()
	return calibration.Row{CenterX: cx, CenterY: cy, Width: float64(b.W), Height: float64(b.H)}
}

// Match returns the indices of rows whose centre, width and height are all
// within tol of target. Only the geometry fields of target are used.
func Match(table *calibration.Table, target calibration.Row, tol float64) []int {
	var idx []int
	for i := 0; i < table.Len(); i++ {
		r := table.At(i)
		if math.Abs(r.CenterX-target.CenterX) <= tol &&
			math.Abs(r.CenterY-target.CenterY) <= tol &&
			math.Abs(r.Width-target.Width) <= tol &&
			math.Abs(r.Height-target.Height) <= tol {
			idx = append(idx, i)
		}
	}
	return idx
}
