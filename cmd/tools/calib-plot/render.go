package main

import (
	"fmt"
	"os"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/monitor"
)

// render writes the coverage PNG and, when htmlPath is set, the chart.
func render(table *calibration.Table, pngPath, htmlPath string, width, height vg.Length) error {
	if err := writeFile(pngPath, func(f *os.File) error {
		return monitor.WriteCoveragePNG(f, table, width, height)
	}); err != nil {
		return err
	}
	if htmlPath == "" {
		return nil
	}
	return writeFile(htmlPath, func(f *os.File) error {
		return monitor.RenderCalibrationChart(f, table)
	})
}

func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
