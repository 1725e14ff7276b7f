package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/config"
	"github.com/banshee-data/piecefinder/internal/monitoring"
	"github.com/banshee-data/piecefinder/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to pipeline JSON config (defaults built in when empty)")
	listen      = flag.String("listen", ":8080", "Monitor HTTP listen address (empty disables)")
	devMode     = flag.Bool("dev", false, "Replay still images instead of opening the camera")
	imageDir    = flag.String("images", "", "Image directory for -dev replay (overrides image_dir)")
	dbPath      = flag.String("db", "", "SQLite run log path (overrides db_path)")
	calibSource = flag.String("calibration", "", "Calibration CSV, or sqlite[:set] (overrides calibration_path)")
	gocvDetect  = flag.Bool("gocv", false, "Use the OpenCV detector (requires -tags gocv)")
	debugLogs   = flag.Bool("debug", false, "Enable the diag log stream")
	traceLogs   = flag.Bool("trace", false, "Enable the per-frame trace log stream")
)

func main() {
	flag.Parse()

	var diagW, traceW io.Writer
	if *debugLogs || *devMode {
		diagW = os.Stderr
	}
	if *traceLogs {
		traceW = os.Stderr
	}
	monitoring.SetLogWriters(os.Stderr, diagW, traceW)
	log.Print(version.String())

	cfg := config.DefaultPipelineConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadPipelineConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, cfg, options{Listen: *listen, GoCVDetector: *gocvDetect})
	if err != nil {
		if errors.Is(err, capture.ErrDevice) {
			log.Printf("camera failure: %v", err)
		} else {
			log.Printf("pipeline stopped with error: %v", err)
		}
		stop()
		os.Exit(1)
	}
	log.Print("shutdown complete")
}

// applyFlags copies explicitly set command-line overrides into cfg.
func applyFlags(cfg *config.PipelineConfig) {
	if *devMode {
		src := config.SourceImages
		cfg.CameraSource = &src
	}
	if *imageDir != "" {
		cfg.ImageDir = imageDir
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *calibSource != "" {
		cfg.CalibrationPath = calibSource
	}
}
