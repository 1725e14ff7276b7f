package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one execution of the pipeline.
type Run struct {
	ID        string          `json:"run_id"`
	Version   string          `json:"version"`
	Config    json.RawMessage `json:"config"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

// StartRun records the start of a pipeline run under a fresh id. cfg is
// stored as JSON.
func (db *DB) StartRun(ctx context.Context, version string, cfg interface{}, startedAt time.Time) (*Run, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	run := &Run{ID: uuid.NewString(), Version: version, Config: cfgJSON, StartedAt: startedAt}
	_, err = db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_id, version, config_json, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, version, string(cfgJSON), startedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	logs.Diagf("run %s started", run.ID)
	return run, nil
}

// EndRun stamps the run's end time and final statistics.
func (db *DB) EndRun(ctx context.Context, runID string, stats interface{}, endedAt time.Time) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode run stats: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE pipeline_runs SET ended_at = ?, stats_json = ? WHERE run_id = ?`,
		endedAt.UnixNano(), string(statsJSON), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, version, config_json, started_at, ended_at, stats_json
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			cfg     string
			started int64
			ended   sql.NullInt64
			stats   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Version, &cfg, &started, &ended, &stats); err != nil {
			return nil, err
		}
		r.Config = json.RawMessage(cfg)
		r.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			r.EndedAt = &t
		}
		if stats.Valid {
			r.Stats = json.RawMessage(stats.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
