/*
Package table provides the uniform tabular representation used by the report engine.

PURPOSE:
  Every extract (CKH, KKH, MUC 30, DK_SMS, SCM010) is decoded into the same
  shape: an ordered list of column names, each column a row-aligned slice
  of string values. A value is either a string or the explicit Missing
  marker. Missing is never conflated with "".

KEY TYPES:
  Value: string-or-missing cell
  Table: ordered, named columns of Values

IMMUTABILITY:
  A Table is never modified after construction. Every operation (With,
  Without, Filter, Pick, Concat, TrimHeaders) returns a new Table. Column
  slices may be shared between tables because nobody writes to them.

USAGE:
  t := table.FromRecords("MUC 30", header, rows)
  if t.Has("DESCRIPTION") {
      desc := t.Column("DESCRIPTION")
      ...
  }
  t2 := t.With("LOAI_TK", classes)

SEE ALSO:
  - decode.go: xlsx / xls / tab-delimited decoding
  - recon/pipeline.go: consumer of decoded tables
*/
package table

import (
	"fmt"
	"strings"
)

// =============================================================================
// VALUE - string or missing
// =============================================================================

// Value is a single cell. The zero Value is Missing.
type Value struct {
	s     string
	valid bool
}

// Missing is the explicit absent-value marker.
var Missing = Value{}

// Text returns a present value, even when s is empty.
func Text(s string) Value { return Value{s: s, valid: true} }

// Cell converts a decoded cell: empty cells become Missing.
func Cell(s string) Value {
	if s == "" {
		return Missing
	}
	return Text(s)
}

func (v Value) IsMissing() bool        { return !v.valid }
func (v Value) Str() (string, bool)    { return v.s, v.valid }
func (v Value) Equal(other Value) bool { return v.valid == other.valid && v.s == other.s }

// Or returns the string, or def when the value is Missing.
func (v Value) Or(def string) string {
	if v.valid {
		return v.s
	}
	return def
}

// String renders the value for output; Missing renders as "".
func (v Value) String() string { return v.s }

// Texts builds a column of present values.
func Texts(ss ...string) []Value {
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = Text(s)
	}
	return out
}

// =============================================================================
// TABLE
// =============================================================================

// Table is an immutable column-oriented table of string values.
type Table struct {
	name    string
	columns []string
	data    map[string][]Value
	rows    int
}

// New returns an empty table with the given columns.
func New(name string, columns ...string) *Table {
	t := &Table{name: name, data: make(map[string][]Value, len(columns))}
	for _, c := range uniqueHeader(columns) {
		t.columns = append(t.columns, c)
		t.data[c] = []Value{}
	}
	return t
}

// FromRecords builds a table from a header and raw string rows.
// Cells past the header width are ignored, short rows are padded with Missing.
func FromRecords(name string, header []string, rows [][]string) *Table {
	cols := uniqueHeader(header)
	t := &Table{name: name, columns: cols, data: make(map[string][]Value, len(cols)), rows: len(rows)}
	for j, c := range cols {
		vals := make([]Value, len(rows))
		for i, row := range rows {
			if j < len(row) {
				vals[i] = Cell(row[j])
			}
		}
		t.data[c] = vals
	}
	return t
}

// uniqueHeader names blank headers "Unnamed: i" and suffixes repeats with ".n".
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n+1)
		} else {
			seen[h] = 0
		}
		out[i] = h
	}
	return out
}

func (t *Table) Name() string { return t.name }
func (t *Table) Len() int     { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Has reports whether the column exists.
func (t *Table) Has(col string) bool {
	_, ok := t.data[col]
	return ok
}

// Column returns a copy of the column, or nil when absent.
func (t *Table) Column(col string) []Value {
	vals, ok := t.data[col]
	if !ok {
		return nil
	}
	return append([]Value(nil), vals...)
}

// Get returns one cell; Missing for an absent column.
func (t *Table) Get(row int, col string) Value {
	vals, ok := t.data[col]
	if !ok || row < 0 || row >= len(vals) {
		return Missing
	}
	return vals[row]
}

// Renamed returns the same content under another name.
func (t *Table) Renamed(name string) *Table {
	c := t.shallow()
	c.name = name
	return c
}

// With adds col at the end, or replaces it in place when it already exists.
// It panics when vals is not row-aligned with the table.
func (t *Table) With(col string, vals []Value) *Table {
	if len(vals) != t.rows {
		panic(fmt.Sprintf("table %q: column %q has %d values, want %d", t.name, col, len(vals), t.rows))
	}
	c := t.shallow()
	if _, ok := c.data[col]; !ok {
		c.columns = append(c.columns, col)
	}
	c.data[col] = append([]Value(nil), vals...)
	return c
}

// WithMissing adds an all-missing column unless it already exists.
func (t *Table) WithMissing(col string) *Table {
	if t.Has(col) {
		return t
	}
	return t.With(col, make([]Value, t.rows))
}

// Without drops the given columns; unknown names are ignored.
func (t *Table) Without(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	c := &Table{name: t.name, data: make(map[string][]Value, len(t.columns)), rows: t.rows}
	for _, col := range t.columns {
		if drop[col] {
			continue
		}
		c.columns = append(c.columns, col)
		c.data[col] = t.data[col]
	}
	return c
}

// Pick returns the given rows in the given order. Indexes may repeat.
func (t *Table) Pick(rows []int) *Table {
	c := &Table{name: t.name, columns: t.Columns(), data: make(map[string][]Value, len(t.columns)), rows: len(rows)}
	for _, col := range t.columns {
		src := t.data[col]
		vals := make([]Value, len(rows))
		for i, r := range rows {
			vals[i] = src[r]
		}
		c.data[col] = vals
	}
	return c
}

// Filter keeps the rows for which keep returns true, in order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Pick(rows)
}

// TrimHeaders strips surrounding whitespace from every column name.
func (t *Table) TrimHeaders() *Table {
	header := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = strings.TrimSpace(col)
	}
	header = uniqueHeader(header)
	c := &Table{name: t.name, columns: header, data: make(map[string][]Value, len(header)), rows: t.rows}
	for i, col := range t.columns {
		c.data[header[i]] = t.data[col]
	}
	return c
}

// Records renders the table as a header row followed by string rows.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, t.rows+1)
	out = append(out, t.Columns())
	for i := 0; i < t.rows; i++ {
		row := make([]string, len(t.columns))
		for j, col := range t.columns {
			row[j] = t.data[col][i].String()
		}
		out = append(out, row)
	}
	return out
}

// Concat stacks tables vertically. Columns are the union in first-seen
// order; cells a table does not have are Missing.
func Concat(name string, tables ...*Table) *Table {
	out := &Table{name: name, data: make(map[string][]Value)}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, col := range t.columns {
			if _, ok := out.data[col]; !ok {
				out.columns = append(out.columns, col)
				out.data[col] = make([]Value, out.rows)
			}
		}
		for _, col := range out.columns {
			if vals, ok := t.data[col]; ok {
				out.data[col] = append(out.data[col], vals...)
			} else {
				out.data[col] = append(out.data[col], make([]Value, t.rows)...)
			}
		}
		out.rows += t.rows
	}
	return out
}

func (t *Table) shallow() *Table {
	c := &Table{name: t.name, columns: t.Columns(), data: make(map[string][]Value, len(t.data)), rows: t.rows}
	for k, v := range t.data {
		c.data[k] = v
	}
	return c
}
