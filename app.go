package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/config"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/estimate"
	"github.com/banshee-data/piecefinder/internal/monitor"
	"github.com/banshee-data/piecefinder/internal/pipeline"
	"github.com/banshee-data/piecefinder/internal/storage"
	"github.com/banshee-data/piecefinder/internal/telemetry"
	"github.com/banshee-data/piecefinder/internal/timeutil"
	"github.com/banshee-data/piecefinder/internal/version"
)

// sqliteCalibration selects the calibration_samples table instead of a CSV.
const sqliteCalibration = "sqlite"

type options struct {
	Listen       string // monitor HTTP address; empty disables
	GoCVDetector bool
	Clock        timeutil.Clock
}

type detector interface {
	detect.Detector
	monitor.ThresholdControl
}

// run wires the stages described by cfg and blocks until ctx is cancelled
// or the pipeline fails.
func run(ctx context.Context, cfg *config.PipelineConfig, opts options) (err error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	var db *storage.DB
	if path := cfg.GetDBPath(); path != "" {
		db, err = storage.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	table, err := loadTable(ctx, cfg.GetCalibrationPath(), db)
	if err != nil {
		return err
	}
	log.Printf("calibration table: %d rows", table.Len())

	est, err := estimate.New(table, estimate.Params{
		Start:         cfg.GetToleranceStart(),
		Max:           cfg.GetToleranceMax(),
		Step:          cfg.GetToleranceStep(),
		CertaintyBase: cfg.GetCertaintyBase(),
	})
	if err != nil {
		return err
	}

	det, closeDetector, err := newDetector(cfg, opts.GoCVDetector)
	if err != nil {
		return err
	}
	defer closeDetector()

	src, err := openSource(ctx, cfg, opts.Clock)
	if err != nil {
		return err
	}
	defer src.Close()

	sinks, err := openSinks(cfg)
	if err != nil {
		return err
	}

	var runRec *storage.Run
	if db != nil {
		runRec, err = db.StartRun(ctx, version.Version, cfg, opts.Clock.Now())
		if err != nil {
			sinks.Close()
			return err
		}
		sinks = append(sinks, db.NewRecordSink(runRec.ID, cfg.GetRecordDefaults()))
	}
	defer func() {
		if cerr := sinks.Close(); cerr != nil {
			log.Printf("failed to close sinks: %v", cerr)
		}
	}()

	pub := telemetry.NewPublisher(sinks, opts.Clock)
	tap := monitor.NewFrameTap()
	p, err := pipeline.New(pipeline.Config{
		Source:          src,
		Detector:        det,
		Estimator:       est,
		Publisher:       pub,
		Clock:           opts.Clock,
		PublishInterval: cfg.GetPublishInterval(),
		FrameObserver:   tap.Observe,
	})
	if err != nil {
		return err
	}

	if runRec != nil {
		defer func() {
			endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if eerr := db.EndRun(endCtx, runRec.ID, p.Stats(), opts.Clock.Now()); eerr != nil {
				log.Printf("failed to close run %s: %v", runRec.ID, eerr)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })

	if opts.Listen != "" {
		mcfg := monitor.Config{
			Address:    opts.Listen,
			Pipeline:   p,
			Publisher:  pub,
			Thresholds: det,
			Table:      table,
			Frames:     tap,
			StreamFPS:  cfg.GetStreamFPS(),
			DB:         db,
			Clock:      opts.Clock,
		}
		if runRec != nil {
			mcfg.RunID = runRec.ID
		}
		srv, err := monitor.NewServer(mcfg)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Start(gctx) })
	}

	return g.Wait()
}

// loadTable reads the calibration table from a CSV file or, for
// "sqlite[:set]", from the database.
func loadTable(ctx context.Context, source string, db *storage.DB) (*calibration.Table, error) {
	set, ok := calibrationSet(source)
	if !ok {
		t, err := calibration.LoadCSV(source)
		if err != nil {
			return nil, fmt.Errorf("failed to load calibration %s: %w", source, err)
		}
		return t, nil
	}
	if db == nil {
		return nil, errors.New("calibration_path selects sqlite but db_path is empty")
	}
	t, err := db.LoadCalibration(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration set %q: %w", set, err)
	}
	return t, nil
}

func calibrationSet(source string) (string, bool) {
	if source == sqliteCalibration {
		return storage.DefaultCalibrationSet, true
	}
	if set, ok := strings.CutPrefix(source, sqliteCalibration+":"); ok && set != "" {
		return set, true
	}
	return "", false
}

func newDetector(cfg *config.PipelineConfig, useGoCV bool) (detector, func(), error) {
	dcfg := detect.Config{
		Thresholds: detect.Thresholds{Lower: cfg.GetHSVLower(), Upper: cfg.GetHSVUpper()},
		KernelSize: cfg.GetKernelSize(),
	}
	if useGoCV {
		d, err := detect.NewGoCVDetector(dcfg)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	}
	d, err := detect.NewColorDetector(dcfg)
	if err != nil {
		return nil, nil, err
	}
	return d, func() {}, nil
}

func openSource(ctx context.Context, cfg *config.PipelineConfig, clock timeutil.Clock) (capture.Source, error) {
	ccfg := capture.Config{
		Device: cfg.GetCameraDevice(),
		Width:  cfg.GetCameraWidth(),
		Height: cfg.GetCameraHeight(),
		FPS:    cfg.GetCameraFPS(),
		Clock:  clock,
	}
	switch cfg.GetCameraSource() {
	case config.SourceImages:
		dir := filepath.Clean(cfg.GetImageDir())
		log.Printf("replaying images from %s at %d fps", dir, ccfg.FPS)
		return capture.OpenImageDir(dir, ccfg)
	case config.SourceGoCV:
		return capture.OpenGoCV(ccfg)
	default:
		return capture.OpenFFmpeg(ctx, ccfg)
	}
}

// openSinks opens the transport sinks. The run log sink is added by run.
func openSinks(cfg *config.PipelineConfig) (telemetry.MultiSink, error) {
	var sinks telemetry.MultiSink
	if addr := cfg.GetGRPCListen(); addr != "" {
		g := telemetry.NewGRPCSink()
		bound, err := g.Start(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to start gRPC telemetry: %w", err)
		}
		log.Printf("gRPC telemetry listening on %s", bound)
		sinks = append(sinks, g)
	}
	if port := cfg.GetSerialPort(); port != "" {
		s, err := telemetry.OpenSerialSink(port, telemetry.SerialOptions{
			BaudRate: cfg.GetSerialBaud(),
			Parity:   cfg.GetSerialParity(),
		})
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("failed to open serial telemetry: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
