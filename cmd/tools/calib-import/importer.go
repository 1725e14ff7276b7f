package main

import (
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/storage"
)

// importCSV replaces the named set with the rows of csvPath.
func importCSV(ctx context.Context, dbPath, csvPath, set string) (int, error) {
	table, err := calibration.LoadCSV(csvPath)
	if err != nil {
		return 0, err
	}
	if table.Len() == 0 {
		return 0, fmt.Errorf("%s has no rows", csvPath)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := db.ReplaceCalibration(ctx, set, table); err != nil {
		return 0, err
	}
	return table.Len(), nil
}

func listSets(ctx context.Context, dbPath string, w io.Writer) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sets, err := db.CalibrationSets(ctx)
	if err != nil {
		return err
	}
	for _, s := range sets {
		fmt.Fprintf(w, "%-20s %6d rows\n", s.Name, s.Rows)
	}
	return nil
}
