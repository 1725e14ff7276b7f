package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/pipeline"
	"github.com/banshee-data/piecefinder/internal/telemetry"
	"github.com/banshee-data/piecefinder/internal/version"
)

const maxThresholdBody = 4096

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		version.Info
		RunID string `json:"run_id,omitempty"`
	}{version.Get(), s.cfg.RunID})
}

type statsResponse struct {
	RunID     string                    `json:"run_id,omitempty"`
	Pipeline  *pipeline.Stats           `json:"pipeline,omitempty"`
	Publisher *telemetry.PublisherStats `json:"publisher,omitempty"`
	Stream    *StreamStats              `json:"stream,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{RunID: s.cfg.RunID}
	if s.cfg.Pipeline != nil {
		ps := s.cfg.Pipeline.Stats()
		resp.Pipeline = &ps
	}
	if s.cfg.Publisher != nil {
		ts := s.cfg.Publisher.Stats()
		resp.Publisher = &ts
	}
	if s.cfg.Frames != nil {
		ss := s.cfg.Frames.Stats()
		resp.Stream = &ss
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Publisher == nil {
		writeJSONError(w, http.StatusNotFound, "publisher not available")
		return
	}
	rec, ok := s.cfg.Publisher.Last()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "nothing published yet")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		telemetry.Record
		LatencyMs float64 `json:"latency_ms"`
	}{rec, float64(rec.Latency().Microseconds()) / 1000})
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Thresholds == nil {
		writeJSONError(w, http.StatusNotFound, "detector not available")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Thresholds.Thresholds())
}

func (s *Server) handlePutThresholds(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Thresholds == nil {
		writeJSONError(w, http.StatusNotFound, "detector not available")
		return
	}
	var t detect.Thresholds
	dec := json.NewDecoder(io.LimitReader(r.Body, maxThresholdBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.cfg.Thresholds.SetThresholds(t); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, detect.ErrInvalidThresholds) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}
	logs.Opsf("thresholds changed via API: lower=%v upper=%v", t.Lower, t.Upper)
	writeJSON(w, http.StatusOK, s.cfg.Thresholds.Thresholds())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		writeJSONError(w, http.StatusNotFound, "run log disabled")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 500 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = v
	}
	runs, err := s.cfg.DB.Runs(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleCalibrationChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := RenderCalibrationChart(&buf, s.cfg.Table); err != nil {
		s.writePlotError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCoveragePNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := WriteCoveragePNG(&buf, s.cfg.Table, 8*vg.Inch, 6*vg.Inch); err != nil {
		s.writePlotError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writePlotError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrEmptyTable) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render: %v", err))
}
