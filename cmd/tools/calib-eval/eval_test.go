package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/estimate"
)

func TestBoxFor(t *testing.T) {
	b := boxFor(calibration.Row{CenterX: 120, CenterY: 80.5, Width: 40, Height: 21})
	assert.Equal(t, detect.Box{X: 100, Y: 70, W: 40, H: 21}, b)
	cx, cy := b.Center()
	assert.Equal(t, 120.0, cx)
	assert.Equal(t, 80.5, cy)
}

func TestEvaluate(t *testing.T) {
	table := calibration.NewTable([]calibration.Row{
		{CenterX: 100, CenterY: 100, Width: 40, Height: 40, XPosition: 1, YPosition: 1},
		{CenterX: 104, CenterY: 100, Width: 40, Height: 40, XPosition: 1, YPosition: 2},
		{CenterX: 100, CenterY: 104, Width: 40, Height: 40, XPosition: 1, YPosition: 4},
		{CenterX: 600, CenterY: 400, Width: 10, Height: 10, XPosition: 8, YPosition: 8},
	})

	rep, err := evaluate(table, estimate.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Rows)
	assert.Equal(t, 3, rep.Matched)
	assert.Equal(t, 1, rep.Unmatched, "isolated row has no neighbours")
	assert.Equal(t, []ToleranceCount{{Tolerance: 25, Count: 3}}, rep.ByTolerance)

	// Row 0 -> mean(2,4)=3 (err 2); row 1 -> mean(1,4)=2.5 (err 0.5); row 2 -> mean(1,2)=1.5 (err 2.5).
	assert.InDelta(t, 5.0/3, rep.MeanError, 1e-9)
	assert.InDelta(t, 2.5, rep.MaxError, 1e-9)
	assert.InDelta(t, 2.0, rep.MedianError, 1e-9)
	assert.InDelta(t, 25.0, rep.MeanCertainty, 1e-9)
	assert.Greater(t, rep.StdError, 0.0)

	var buf bytes.Buffer
	rep.writeText(&buf)
	assert.Contains(t, buf.String(), "unmatched:  1")
	assert.Contains(t, buf.String(), "tolerance 25")

	_, err = json.Marshal(rep)
	require.NoError(t, err)
}

func TestEvaluate_EmptyAndInvalid(t *testing.T) {
	rep, err := evaluate(calibration.NewTable(nil), estimate.DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, rep.Matched)

	_, err = evaluate(calibration.NewTable(nil), estimate.Params{Start: 5, Max: 1, Step: 1})
	assert.ErrorIs(t, err, estimate.ErrInvalidParams)
}
