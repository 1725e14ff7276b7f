// calib-eval measures how well a calibration table predicts itself: each
// row is estimated from the remaining rows and compared with its recorded
// ground position.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/estimate"
	"github.com/banshee-data/piecefinder/internal/storage"
)

func main() {
	csvPath := flag.String("csv", "", "calibration CSV")
	dbPath := flag.String("db", "", "sqlite DB to read the set from instead of -csv")
	set := flag.String("set", storage.DefaultCalibrationSet, "calibration set name (with -db)")
	start := flag.Float64("tolerance-start", estimate.DefaultParams().Start, "first tolerance tried")
	maxTol := flag.Float64("tolerance-max", estimate.DefaultParams().Max, "largest tolerance tried")
	step := flag.Float64("tolerance-step", estimate.DefaultParams().Step, "tolerance increment")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	table, err := load(*csvPath, *dbPath, *set)
	if err != nil {
		log.Fatalf("failed to load calibration: %v", err)
	}

	params := estimate.DefaultParams()
	params.Start, params.Max, params.Step = *start, *maxTol, *step
	rep, err := evaluate(table, params)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatal(err)
		}
		return
	}
	rep.writeText(os.Stdout)
}

func load(csvPath, dbPath, set string) (*calibration.Table, error) {
	if strings.TrimSpace(dbPath) == "" {
		return calibration.LoadCSV(csvPath)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.LoadCalibration(context.Background(), set)
}
