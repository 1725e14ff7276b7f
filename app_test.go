package main

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/piecefinder/internal/config"
	"github.com/banshee-data/piecefinder/internal/storage"
)

func ptr[T any](v T) *T { return &v }

func TestCalibrationSet(t *testing.T) {
	tests := []struct {
		source string
		set    string
		ok     bool
	}{
		{"sqlite", storage.DefaultCalibrationSet, true},
		{"sqlite:2024-note", "2024-note", true},
		{"sqlite:", "", false},
		{"Data/2024-Note/FullData.csv", "", false},
	}
	for _, tt := range tests {
		set, ok := calibrationSet(tt.source)
		assert.Equal(t, tt.ok, ok, tt.source)
		assert.Equal(t, tt.set, set, tt.source)
	}
}

func writeCalibration(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "calibration.csv")
	body := ",Center_X,Center_Y,Width,Height,x_position,y_position\n" +
		"0,120,120,40,40,2,3\n" +
		"1,400,300,20,20,9,9\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCalibration(t, dir)

	table, err := loadTable(context.Background(), csvPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	_, err = loadTable(context.Background(), "sqlite", nil)
	assert.Error(t, err, "sqlite calibration needs a database")

	_, err = loadTable(context.Background(), filepath.Join(dir, "missing.csv"), nil)
	assert.Error(t, err)

	db, err := storage.Open(filepath.Join(dir, "pf.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.ReplaceCalibration(context.Background(), "bench", table))

	fromDB, err := loadTable(context.Background(), "sqlite:bench", db)
	require.NoError(t, err)
	assert.Equal(t, table.Rows(), fromDB.Rows())

	_, err = loadTable(context.Background(), "sqlite", db)
	assert.ErrorIs(t, err, storage.ErrUnknownSet)
}

func writeFrames(t *testing.T, dir string) {
	t.Helper()
	orange := color.NRGBA{R: 255, G: 128, A: 255}
	for _, name := range []string{"a.png", "b.png"} {
		img := imaging.New(320, 240, color.Black)
		draw.Draw(img, image.Rect(100, 100, 140, 140), &image.Uniform{C: orange}, image.Point{}, draw.Src)
		require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
	}
}

func TestRun_ReplaysImagesIntoRunLog(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.Mkdir(frames, 0o755))
	writeFrames(t, frames)
	dbPath := filepath.Join(dir, "run.db")

	cfg := config.DefaultPipelineConfig()
	cfg.CameraSource = ptr(config.SourceImages)
	cfg.ImageDir = ptr(frames)
	cfg.CameraWidth = ptr(320)
	cfg.CameraHeight = ptr(240)
	cfg.CameraFPS = ptr(50)
	cfg.CalibrationPath = ptr(writeCalibration(t, dir))
	cfg.GRPCListen = ptr("127.0.0.1:0")
	cfg.DBPath = ptr(dbPath)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg, options{}))

	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotNil(t, runs[0].EndedAt)
	assert.Contains(t, string(runs[0].Stats), `"captured"`)

	records, err := db.RunRecords(context.Background(), runs[0].ID, 100)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, r := range records {
		assert.False(t, r.Default)
		assert.Equal(t, 2.0, r.X)
		assert.Equal(t, 3.0, r.Y)
		assert.Equal(t, 25.0, r.Certainty)
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultPipelineConfig()
	cfg.CalibrationPath = ptr(filepath.Join(dir, "missing.csv"))
	assert.Error(t, run(context.Background(), cfg, options{}))

	cfg = config.DefaultPipelineConfig()
	cfg.CameraSource = ptr(config.SourceImages)
	cfg.ImageDir = ptr(filepath.Join(dir, "empty"))
	cfg.CalibrationPath = ptr(writeCalibration(t, dir))
	cfg.GRPCListen = ptr("")
	err := run(context.Background(), cfg, options{})
	require.Error(t, err)
}
