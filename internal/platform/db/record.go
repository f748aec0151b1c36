package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Record is one result row: field names mapped to values, ordered as the columns were.
type Record struct {
	columns []string
	values  map[string]any
}

// NewRecord builds a Record from parallel column and value slices.
func NewRecord(columns []string, values []any) Record {
	rec := Record{
		columns: make([]string, 0, len(columns)),
		values:  make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if _, dup := rec.values[col]; !dup {
			rec.columns = append(rec.columns, col)
		}
		rec.values[col] = v
	}
	return rec
}

// Columns returns the field names in column order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.columns)
}

// Value returns the raw value for name.
func (r Record) Value(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Int64 returns an integer field, zero when absent or NULL.
func (r Record) Int64(name string) int64 {
	switch v := r.values[name].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// String returns a text field, empty when absent or NULL.
func (r Record) String(name string) string {
	switch v := r.values[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns a boolean field, false when absent or NULL.
func (r Record) Bool(name string) bool {
	v, _ := r.values[name].(bool)
	return v
}

// Time returns a timestamp field, the zero time when absent or NULL.
func (r Record) Time(name string) time.Time {
	v, _ := r.values[name].(time.Time)
	return v
}

// TimePtr returns a nullable timestamp field.
func (r Record) TimePtr(name string) *time.Time {
	v, ok := r.values[name].(time.Time)
	if !ok {
		return nil
	}
	return &v
}

// Map copies the record into a plain map.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.columns))
	for _, col := range r.columns {
		out[col] = r.values[col]
	}
	return out
}

// MarshalJSON encodes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// collectRecords drains rows into records. limit <= 0 reads every row.
func collectRecords(rows pgx.Rows, limit int) ([]Record, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	records := make([]Record, 0)
	for rows.Next() {
		if limit > 0 && len(records) == limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		records = append(records, NewRecord(columns, values))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
