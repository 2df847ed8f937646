package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type of data held by a Value.
type Kind int

const (
	// KindMissing marks a cell with no usable value.
	KindMissing Kind = iota
	// KindString holds opaque text, including raw unparsed fields.
	KindString
	// KindNumber holds a float64.
	KindNumber
	// KindDate holds a calendar date.
	KindDate
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a single tagged cell. The zero value is a missing cell.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
}

// Missing returns a missing cell.
func Missing() Value {
	return Value{Kind: KindMissing}
}

// String returns a text cell.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number returns a numeric cell.
func Number(f float64) Value {
	return Value{Kind: KindNumber, Num: f}
}

// Date returns a date cell.
func Date(t time.Time) Value {
	return Value{Kind: KindDate, Time: t}
}

// IsMissing reports whether the cell holds no value.
func (v Value) IsMissing() bool {
	return v.Kind == KindMissing
}

// Format renders the cell for tabular output. Missing cells render empty,
// numbers without trailing zeros, dates in ISO format.
func (v Value) Format() string {
	switch v.Kind {
	case KindMissing:
		return ""
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Time.Format("2006-01-02")
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindMissing:
		return true
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindDate:
		return v.Time.Equal(other.Time)
	default:
		return false
	}
}

// Table is an in-memory tabular snapshot with ordered columns. Stages treat a
// received table as read-only and return a new snapshot, so transformations
// compose as pure functions.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty table with the given column order.
func New(columns []string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range t.columns {
		t.index[c] = i
	}
	return t
}

// Columns returns the column names in order. The caller must not modify the
// returned slice.
func (t *Table) Columns() []string {
	return t.columns
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// AppendRow adds a row. The row length must match the column count.
func (t *Table) AppendRow(values []Value) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	t.rows = append(t.rows, append([]Value(nil), values...))
	return nil
}

// Value returns the cell at (row, column). Unknown columns read as missing.
func (t *Table) Value(row int, column string) Value {
	i, ok := t.index[column]
	if !ok {
		return Missing()
	}
	return t.rows[row][i]
}

// SetValue overwrites the cell at (row, column). Unknown columns are ignored.
func (t *Table) SetValue(row int, column string, v Value) {
	if i, ok := t.index[column]; ok {
		t.rows[row][i] = v
	}
}

// Row returns a copy of the row at the given position.
func (t *Table) Row(row int) []Value {
	return append([]Value(nil), t.rows[row]...)
}

// Column returns a copy of all cells in the named column, in row order.
func (t *Table) Column(name string) []Value {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]Value, len(t.rows))
	for r := range t.rows {
		out[r] = t.rows[r][i]
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := New(t.columns)
	c.rows = make([][]Value, len(t.rows))
	for r := range t.rows {
		c.rows[r] = append([]Value(nil), t.rows[r]...)
	}
	return c
}

// AddColumn appends a new column with one value per row.
func (t *Table) AddColumn(name string, values []Value) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], values[r])
	}
	return nil
}

// DropColumns returns a new table without the named columns. Names that do
// not exist are ignored.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var kept []string
	for _, c := range t.columns {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	out := New(kept)
	out.rows = make([][]Value, len(t.rows))
	for r := range t.rows {
		row := make([]Value, 0, len(kept))
		for _, c := range kept {
			row = append(row, t.rows[r][t.index[c]])
		}
		out.rows[r] = row
	}
	return out
}

// FilterRows returns a new table containing only rows for which keep returns
// true, preserving row order.
func (t *Table) FilterRows(keep func(row int) bool) *Table {
	out := New(t.columns)
	for r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, append([]Value(nil), t.rows[r]...))
		}
	}
	return out
}

// SortRows sorts rows in place with a stable sort, so ties keep their
// original relative order.
func (t *Table) SortRows(less func(i, j int) bool) {
	sort.SliceStable(t.rows, func(i, j int) bool { return less(i, j) })
}

// RowKey builds a composite key from every cell in the row, used to detect
// exact duplicate rows. The unit separator keeps adjacent cells from
// colliding.
func (t *Table) RowKey(row int) string {
	parts := make([]string, len(t.columns))
	for i := range t.columns {
		v := t.rows[row][i]
		parts[i] = v.Kind.String() + ":" + v.Format()
	}
	return strings.Join(parts, "\x1f")
}

// Equal reports whether two tables have identical columns and cells.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.columns) != len(other.columns) || len(t.rows) != len(other.rows) {
		return false
	}
	for i := range t.columns {
		if t.columns[i] != other.columns[i] {
			return false
		}
	}
	for r := range t.rows {
		for c := range t.columns {
			if !t.rows[r][c].Equal(other.rows[r][c]) {
				return false
			}
		}
	}
	return true
}
