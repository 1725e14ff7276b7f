package monitor

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/piecefinder/internal/calibration"
)

// ErrEmptyTable is returned when there is nothing to plot.
var ErrEmptyTable = errors.New("calibration table is empty")

// RenderCalibrationChart writes an interactive HTML scatter of the table's
// ground positions, coloured by the observed box width.
func RenderCalibrationChart(w io.Writer, t *calibration.Table) error {
	if t.Len() == 0 {
		return ErrEmptyTable
	}
	lo, hi, _ := t.Bounds()

	data := make([]opts.ScatterData, 0, t.Len())
	for _, r := range t.Rows() {
		data = append(data, opts.ScatterData{Value: []interface{}{r.XPosition, r.YPosition, r.Width}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration table", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Calibration samples", Subtitle: fmt.Sprintf("rows=%d", t.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x_position", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y_position", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo[2]),
			Max:        float32(hi[2]),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("samples", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter.Render(w)
}

// WriteCoveragePNG plots the box centres of every calibration row, showing
// which parts of the image the table covers.
func WriteCoveragePNG(w io.Writer, t *calibration.Table, width, height vg.Length) error {
	if t.Len() == 0 {
		return ErrEmptyTable
	}
	pts := make(plotter.XYs, t.Len())
	for i, r := range t.Rows() {
		pts[i].X = r.CenterX
		pts[i].Y = r.CenterY
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Calibration coverage (%d rows)", t.Len())
	p.X.Label.Text = "Center_X (px)"
	p.Y.Label.Text = "Center_Y (px)"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(plotter.NewGrid(), sc)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
