// calib-plot renders a calibration table as a coverage PNG and, optionally,
// an interactive HTML scatter.
package main

import (
	"flag"
	"log"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/piecefinder/internal/calibration"
)

func main() {
	csvPath := flag.String("csv", "", "calibration CSV")
	pngPath := flag.String("out", "coverage.png", "coverage PNG output path")
	htmlPath := flag.String("html", "", "optional HTML chart output path")
	width := flag.Float64("width", 8, "PNG width in inches")
	height := flag.Float64("height", 6, "PNG height in inches")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}
	table, err := calibration.LoadCSV(*csvPath)
	if err != nil {
		log.Fatalf("failed to load calibration: %v", err)
	}
	if err := render(table, *pngPath, *htmlPath, vg.Length(*width)*vg.Inch, vg.Length(*height)*vg.Inch); err != nil {
		log.Fatalf("render failed: %v", err)
	}
	log.Printf("plotted %d rows to %s", table.Len(), *pngPath)
}
