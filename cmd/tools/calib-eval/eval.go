package main

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/estimate"
)

// Report summarises a leave-one-out evaluation. Errors are Euclidean
// distances in the table's ground units.
type Report struct {
	Rows          int              `json:"rows"`
	Matched       int              `json:"matched"`
	Unmatched     int              `json:"unmatched"`
	MeanError     float64          `json:"mean_error"`
	StdError      float64          `json:"std_error"`
	MedianError   float64          `json:"median_error"`
	P95Error      float64          `json:"p95_error"`
	MaxError      float64          `json:"max_error"`
	MeanCertainty float64          `json:"mean_certainty"`
	ByTolerance   []ToleranceCount `json:"by_tolerance"`
}

// ToleranceCount is how many rows first matched at Tolerance.
type ToleranceCount struct {
	Tolerance float64 `json:"tolerance"`
	Count     int     `json:"count"`
}

// boxFor converts a calibration row back into the detection that would
// have produced it.
func boxFor(r calibration.Row) detect.Box {
	w := int(math.Round(r.Width))
	h := int(math.Round(r.Height))
	return detect.Box{
		X: int(math.Round(r.CenterX - float64(w)/2)),
		Y: int(math.Round(r.CenterY - float64(h)/2)),
		W: w,
		H: h,
	}
}

// evaluate estimates every row from the rest of the table.
func evaluate(table *calibration.Table, params estimate.Params) (Report, error) {
	if err := params.Validate(); err != nil {
		return Report{}, err
	}
	rep := Report{Rows: table.Len()}
	byTol := make(map[float64]int)

	var errs, certs []float64
	for i := 0; i < table.Len(); i++ {
		row := table.At(i)
		est, err := estimate.New(table.Without(i), params)
		if err != nil {
			return Report{}, err
		}
		got, ok := est.Estimate(detect.Detection{Box: boxFor(row), FrameSeq: uint64(i)})
		if !ok {
			rep.Unmatched++
			continue
		}
		rep.Matched++
		byTol[got.Tolerance]++
		errs = append(errs, math.Hypot(got.X-row.XPosition, got.Y-row.YPosition))
		certs = append(certs, got.Certainty)
	}
	for _, tol := range params.Tolerances() {
		if n := byTol[tol]; n > 0 {
			rep.ByTolerance = append(rep.ByTolerance, ToleranceCount{Tolerance: tol, Count: n})
		}
	}
	if len(errs) == 0 {
		return rep, nil
	}

	rep.MeanError, rep.StdError = stat.MeanStdDev(errs, nil)
	if len(errs) < 2 {
		rep.StdError = 0
	}
	sort.Float64s(errs)
	rep.MedianError = stat.Quantile(0.5, stat.Empirical, errs, nil)
	rep.P95Error = stat.Quantile(0.95, stat.Empirical, errs, nil)
	rep.MaxError = floats.Max(errs)
	rep.MeanCertainty = stat.Mean(certs, nil)
	return rep, nil
}

func (r Report) writeText(w io.Writer) {
	fmt.Fprintf(w, "rows:       %d\n", r.Rows)
	fmt.Fprintf(w, "matched:    %d\n", r.Matched)
	fmt.Fprintf(w, "unmatched:  %d\n", r.Unmatched)
	if r.Matched == 0 {
		return
	}
	fmt.Fprintf(w, "error:      mean %.3f  std %.3f  median %.3f  p95 %.3f  max %.3f\n",
		r.MeanError, r.StdError, r.MedianError, r.P95Error, r.MaxError)
	fmt.Fprintf(w, "certainty:  mean %.2f\n", r.MeanCertainty)
	for _, tc := range r.ByTolerance {
		fmt.Fprintf(w, "  tolerance %-5g %d\n", tc.Tolerance, tc.Count)
	}
}
