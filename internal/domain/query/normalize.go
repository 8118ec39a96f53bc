package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one result row keyed by column name. Keys keep column order,
// which is also the order used when the record is encoded as JSON.
type Record struct {
	keys   []string
	values map[string]any
}

func NewRecord(capacity int) Record {
	return Record{keys: make([]string, 0, capacity), values: make(map[string]any, capacity)}
}

// Set stores v under col, appending col to the key order on first use.
func (r *Record) Set(col string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[col]; !ok {
		r.keys = append(r.keys, col)
	}
	r.values[col] = v
}

func (r Record) Get(col string) (any, bool) {
	v, ok := r.values[col]
	return v, ok
}

func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Record) Len() int { return len(r.keys) }

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResultSet is the normalized tabular output of one statement.
type ResultSet struct {
	Columns []string
	Rows    []Record
}

// Empty returns a result set with non-nil, zero-length collections.
func Empty() ResultSet {
	return ResultSet{Columns: []string{}, Rows: []Record{}}
}

// Normalize zips each row into a Record keyed by column. A row shorter or
// longer than the column list is zipped only up to the shorter of the two,
// since warehouse payloads are loosely typed.
func Normalize(columns []string, rows [][]any) ResultSet {
	cols := uniqueColumns(columns)
	out := ResultSet{Columns: cols, Rows: make([]Record, 0, len(rows))}
	for _, row := range rows {
		n := min(len(cols), len(row))
		rec := NewRecord(n)
		for i := 0; i < n; i++ {
			rec.Set(cols[i], row[i])
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

// uniqueColumns suffixes repeated names (_2, _3, ...) so every key in a
// Record is distinct.
func uniqueColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]int, len(columns))
	for _, c := range columns {
		name := c
		for n := seen[c]; n > 0; n++ {
			candidate := fmt.Sprintf("%s_%d", c, n+1)
			if _, taken := seen[candidate]; !taken {
				name = candidate
				break
			}
		}
		seen[c]++
		if name != c {
			seen[name]++
		}
		out = append(out, name)
	}
	return out
}
