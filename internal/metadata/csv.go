package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Rows holds externally supplied metadata keyed by one CSV column.
type Rows struct {
	key  string
	rows map[string][]Entry
}

// Table is a CSV file read in order: the trimmed header and every data row.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a CSV with a header row. Blank lines are skipped and
// fields are trimmed.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("metadata csv: missing header row")
		}
		return nil, fmt.Errorf("metadata csv: reading header: %w", err)
	}
	t := &Table{Header: header}
	for i := range t.Header {
		t.Header[i] = strings.TrimSpace(t.Header[i])
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("metadata csv: %w", err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, rec)
	}
}

// ReadTableFile opens path and calls ReadTable.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadTable(f)
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Value returns column name of row, or "" when the column is absent.
func (t *Table) Value(row []string, name string) string {
	i := t.Column(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// LoadCSV reads a CSV with a header row. Every row is stored under the value
// of keyColumn; the other columns become entries in header order. A later
// row with the same key replaces an earlier one.
func LoadCSV(r io.Reader, keyColumn string) (*Rows, error) {
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}
	keyIdx := t.Column(keyColumn)
	if keyIdx < 0 {
		return nil, fmt.Errorf("metadata csv: key column %q not in header", keyColumn)
	}

	rows := &Rows{key: keyColumn, rows: make(map[string][]Entry)}
	for _, rec := range t.Rows {
		key := t.Value(rec, keyColumn)
		if key == "" {
			continue
		}
		var entries []Entry
		for i, v := range rec {
			if i == keyIdx || i >= len(t.Header) {
				continue
			}
			entries = append(entries, Entry{Attribute: t.Header[i], Value: v})
		}
		rows.rows[key] = entries
	}
	return rows, nil
}

// LoadCSVFile opens path and calls LoadCSV.
func LoadCSVFile(path, keyColumn string) (*Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadCSV(f, keyColumn)
}

// KeyColumn returns the column rows are keyed by.
func (r *Rows) KeyColumn() string {
	if r == nil {
		return ""
	}
	return r.key
}

// Len returns the number of keyed rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rows)
}

// Lookup returns the entries of the first key that has a row.
func (r *Rows) Lookup(keys ...string) ([]Entry, bool) {
	if r == nil {
		return nil, false
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if e, ok := r.rows[k]; ok {
			return e, true
		}
	}
	return nil, false
}
