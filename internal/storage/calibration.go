package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/piecefinder/internal/calibration"
)

// ErrUnknownSet is returned when a calibration set has no rows.
var ErrUnknownSet = errors.New("unknown calibration set")

// DefaultCalibrationSet is the set used when none is named.
const DefaultCalibrationSet = "default"

// ReplaceCalibration stores t as the named set, replacing any earlier rows
// of that set. Row order is preserved.
func (db *DB) ReplaceCalibration(ctx context.Context, set string, t *calibration.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calibration_samples WHERE set_name = ?`, set); err != nil {
		return fmt.Errorf("failed to clear set %q: %w", set, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO calibration_samples
		(set_name, center_x, center_y, width, height, x_position, y_position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range t.Rows() {
		if _, err := stmt.ExecContext(ctx, set, r.CenterX, r.CenterY, r.Width, r.Height, r.XPosition, r.YPosition); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logs.Diagf("stored %d calibration rows as set %q", t.Len(), set)
	return nil
}

// LoadCalibration reads the named set in insertion order.
func (db *DB) LoadCalibration(ctx context.Context, set string) (*calibration.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT center_x, center_y, width, height, x_position, y_position
		FROM calibration_samples WHERE set_name = ? ORDER BY sample_id`, set)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calibration.Row
	for rows.Next() {
		var r calibration.Row
		if err := rows.Scan(&r.CenterX, &r.CenterY, &r.Width, &r.Height, &r.XPosition, &r.YPosition); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSet, set)
	}
	return calibration.NewTable(out), nil
}

// CalibrationSet summarises one stored set.
type CalibrationSet struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// CalibrationSets lists the stored sets by name.
func (db *DB) CalibrationSets(ctx context.Context) ([]CalibrationSet, error) {
	rows, err := db.QueryContext(ctx, `SELECT set_name, COUNT(*) FROM calibration_samples GROUP BY set_name ORDER BY set_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []CalibrationSet
	for rows.Next() {
		var s CalibrationSet
		if err := rows.Scan(&s.Name, &s.Rows); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}

