package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a calibration CSV lacks a required header.
var ErrMissingColumn = errors.New("missing calibration column")

// Columns lists the CSV headers in Row field order.
var Columns = []string{"Center_X", "Center_Y", "Width", "Height", "x_position", "y_position"}

// LoadCSV reads a calibration table from a CSV file.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration table: %w", err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV parses a calibration table. Columns are located by header name,
// case-insensitively and in any order; other columns (such as an unnamed
// index column) are ignored. Any malformed value fails the whole table.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var idx [6]int
	for c, name := range Columns {
		i, ok := headerMap[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[c] = i
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var v [6]float64
		for c, i := range idx {
			if i >= len(record) {
				return nil, fmt.Errorf("line %d: missing %s", line, Columns[c])
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("line %d: invalid %s %q", line, Columns[c], record[i])
			}
			v[c] = f
		}
		rows = append(rows, Row{CenterX: v[0], CenterY: v[1], Width: v[2], Height: v[3], XPosition: v[4], YPosition: v[5]})
	}
	return &Table{rows: rows}, nil
}

// WriteCSV writes t with the canonical headers.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range t.Rows() {
		v := r.values()
		rec := make([]string, len(v))
		for i, f := range v {
			rec[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
