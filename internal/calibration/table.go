// Package calibration holds the lookup table that maps observed bounding-box
// geometry to known ground-plane positions. Tables are built offline from
// synthetic renders and loaded once at startup.
package calibration

// Row is one calibration sample: the box seen by the camera and the
// position of the object that produced it.
type Row struct {
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	XPosition float64 `json:"x_position"`
	YPosition float64 `json:"y_position"`
}

// Table is an ordered, immutable set of rows. It is safe to share between
// goroutines without locking.
type Table struct {
	rows []Row
}

// NewTable copies rows into a new Table.
func NewTable(rows []Row) *Table {
	return &Table{rows: append([]Row(nil), rows...)}
}

// Len returns the number of rows. A nil Table is empty.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// At returns row i.
func (t *Table) At(i int) Row { return t.rows[i] }

// Rows returns a copy of the rows in table order.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return append([]Row(nil), t.rows...)
}

// Without returns a table with row i removed.
func (t *Table) Without(i int) *Table {
	rows := make([]Row, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)
	return &Table{rows: rows}
}

// Bounds returns the smallest and largest value of each column, in Row
// field order. ok is false for an empty table.
func (t *Table) Bounds() (lo, hi [6]float64, ok bool) {
	if t.Len() == 0 {
		return lo, hi, false
	}
	for i, r := range t.rows {
		v := r.values()
		for c := range v {
			if i == 0 || v[c] < lo[c] {
				lo[c] = v[c]
			}
			if i == 0 || v[c] > hi[c] {
				hi[c] = v[c]
			}
		}
	}
	return lo, hi, true
}

func (r Row) values() [6]float64 {
	return [6]float64{r.CenterX, r.CenterY, r.Width, r.Height, r.XPosition, r.YPosition}
}
