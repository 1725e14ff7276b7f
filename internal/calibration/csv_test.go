package calibration

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadCSV(t *testing.T) {
	// Exported from pandas: unnamed index column first, columns reordered.
	data := `,x_position,y_position,Center_X,Center_Y,Width,Height
0,2.0,3.0,100,100,50,50
1,-1.25,4.5,320.5,200,80,60
`
	table, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	want := []Row{
		{CenterX: 100, CenterY: 100, Width: 50, Height: 50, XPosition: 2, YPosition: 3},
		{CenterX: 320.5, CenterY: 200, Width: 80, Height: 60, XPosition: -1.25, YPosition: 4.5},
	}
	if diff := cmp.Diff(want, table.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("Center_X,Center_Y,Width,Height,x_position,y_position\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "", "missing calibration column"},
		{"missing column", "Center_X,Center_Y,Width,x_position,y_position\n1,2,3,4,5\n", "Height"},
		{"bad number", "Center_X,Center_Y,Width,Height,x_position,y_position\n1,2,3,four,5,6\n", "line 2: invalid Height"},
		{"nan", "Center_X,Center_Y,Width,Height,x_position,y_position\n1,2,3,4,NaN,6\n", "invalid x_position"},
		{"short row", "Center_X,Center_Y,Width,Height,x_position,y_position\n1,2,3,4,5,6\n1,2,3\n", "line 3: missing Height"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	src := NewTable([]Row{
		{CenterX: 1.5, CenterY: 2, Width: 3, Height: 4, XPosition: 0.125, YPosition: -7},
	})
	var buf bytes.Buffer
	if err := WriteCSV(&buf, src); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Center_X,Center_Y,Width,Height,x_position,y_position\n") {
		t.Errorf("unexpected header: %q", buf.String())
	}

	path := filepath.Join(t.TempDir(), "table.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if diff := cmp.Diff(src.Rows(), got.Rows()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTableHelpers(t *testing.T) {
	table := NewTable([]Row{
		{CenterX: 10, CenterY: 5, Width: 1, Height: 1, XPosition: 1, YPosition: 9},
		{CenterX: 20, CenterY: 1, Width: 2, Height: 3, XPosition: -1, YPosition: 4},
		{CenterX: 30, CenterY: 7, Width: 4, Height: 2, XPosition: 0, YPosition: 6},
	})

	lo, hi, ok := table.Bounds()
	if !ok {
		t.Fatal("Bounds() not ok on non-empty table")
	}
	if lo != [6]float64{10, 1, 1, 1, -1, 4} || hi != [6]float64{30, 7, 4, 3, 1, 9} {
		t.Errorf("Bounds() = %v, %v", lo, hi)
	}

	rest := table.Without(1)
	if rest.Len() != 2 || rest.At(1).CenterX != 30 || table.Len() != 3 {
		t.Errorf("Without(1) = %v", rest.Rows())
	}

	var empty *Table
	if empty.Len() != 0 {
		t.Error("nil table should be empty")
	}
	if _, _, ok := NewTable(nil).Bounds(); ok {
		t.Error("Bounds() ok on empty table")
	}
}
