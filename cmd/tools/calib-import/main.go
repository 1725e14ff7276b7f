// calib-import loads a calibration CSV into the piecefinder SQLite store so
// the pipeline can run with calibration_path set to "sqlite[:set]".
package main

import (
	"context"
	"flag"
	"log"
)

func main() {
	dbPath := flag.String("db", "piecefinder.db", "path to sqlite DB file")
	csvPath := flag.String("csv", "", "calibration CSV to import")
	set := flag.String("set", "default", "calibration set name")
	list := flag.Bool("list", false, "list stored sets and exit")
	flag.Parse()

	if *list {
		if err := listSets(context.Background(), *dbPath, log.Writer()); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		return
	}
	if *csvPath == "" {
		log.Fatal("-csv is required")
	}

	n, err := importCSV(context.Background(), *dbPath, *csvPath, *set)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	log.Printf("imported %d rows from %s into set %q", n, *csvPath, *set)
}
