// Package monitor serves the operator-facing HTTP interface: pipeline
// statistics, the latest published record, runtime threshold changes,
// calibration charts and a downscaled MJPEG view of the camera.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/monitoring"
	"github.com/banshee-data/piecefinder/internal/pipeline"
	"github.com/banshee-data/piecefinder/internal/storage"
	"github.com/banshee-data/piecefinder/internal/telemetry"
	"github.com/banshee-data/piecefinder/internal/timeutil"
)

var logs = monitoring.For("monitor")

// StatsSource reports pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// RecordSource reports what the publisher last sent.
type RecordSource interface {
	Last() (telemetry.Record, bool)
	Stats() telemetry.PublisherStats
}

// ThresholdControl reads and replaces the detector thresholds.
type ThresholdControl interface {
	Thresholds() detect.Thresholds
	SetThresholds(detect.Thresholds) error
}

// Config contains the collaborators the server reports on. Nil members
// disable the routes that need them.
type Config struct {
	Address    string
	Pipeline   StatsSource
	Publisher  RecordSource
	Thresholds ThresholdControl
	Table      *calibration.Table
	Frames     *FrameTap
	StreamFPS  int
	DB         *storage.DB
	RunID      string
	Clock      timeutil.Clock
}

// Server is the monitor HTTP server.
type Server struct {
	cfg    Config
	server *http.Server
}

// NewServer builds the routes. When cfg.DB is set its admin routes are
// mounted under /debug/.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.StreamFPS <= 0 {
		cfg.StreamFPS = 15
	}
	s := &Server{cfg: cfg}

	root := http.NewServeMux()
	if cfg.DB != nil {
		if err := cfg.DB.AttachAdminRoutes(root); err != nil {
			return nil, err
		}
	}
	root.Handle("/", s.routes())

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/thresholds", s.handleGetThresholds).Methods(http.MethodGet)
	r.HandleFunc("/api/thresholds", s.handlePutThresholds).Methods(http.MethodPut)
	r.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/calibration/chart", s.handleCalibrationChart).Methods(http.MethodGet)
	r.HandleFunc("/api/calibration/coverage.png", s.handleCoveragePNG).Methods(http.MethodGet)
	r.HandleFunc("/stream.mjpeg", s.handleStream).Methods(http.MethodGet)
	return r
}

// Start serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logs.Diagf("HTTP monitor listening on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logs.Opsf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			logs.Opsf("HTTP server force close error: %v", err)
		}
	}
	logs.Diagf("HTTP monitor stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Tracef("failed to write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
