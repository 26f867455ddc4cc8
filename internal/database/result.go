package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResultSet is the normalized output of one statement execution. Every row
// shares Columns and their order.
type ResultSet struct {
	Columns []string
	Rows    []Row
}

// Row is an ordered mapping from column name to a scalar value. Values are one of
// nil, int64, float64, string, bool, time.Time, []byte or json.Number (exact decimals).
type Row struct {
	columns []string
	values  []any
}

func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Columns() []string { return r.columns }
func (r Row) Values() []any     { return r.values }

// Get returns the value of the first column named col.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.columns {
		if c == col {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as an unordered map. Later duplicate column names win.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the row as a JSON object whose keys keep column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the result set as an array of row objects.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	if rs == nil || rs.Rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rs.Rows)
}

// Strings renders the result set as a header row followed by one string row per
// result row, for tabular terminal output.
func (rs *ResultSet) Strings() [][]string {
	out := make([][]string, 0, len(rs.Rows)+1)
	out = append(out, append([]string(nil), rs.Columns...))
	for _, row := range rs.Rows {
		line := make([]string, len(row.values))
		for i, v := range row.values {
			line[i] = formatValue(v)
		}
		out = append(out, line)
	}
	return out
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("0x%X", typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

var (
	decimalTypes = map[string]bool{"DECIMAL": true, "NUMERIC": true, "MONEY": true, "SMALLMONEY": true, "NEWDECIMAL": true}
	binaryTypes  = map[string]bool{
		"BINARY": true, "VARBINARY": true, "IMAGE": true, "BLOB": true, "TINYBLOB": true,
		"MEDIUMBLOB": true, "LONGBLOB": true, "BYTEA": true, "TIMESTAMP": true, "ROWVERSION": true,
	}
	integerTypes = map[string]bool{
		"INT": true, "INTEGER": true, "BIGINT": true, "SMALLINT": true, "TINYINT": true,
		"MEDIUMINT": true, "INT2": true, "INT4": true, "INT8": true,
	}
	floatTypes = map[string]bool{"FLOAT": true, "DOUBLE": true, "REAL": true, "FLOAT4": true, "FLOAT8": true}
)

// normalizeValue maps a driver value onto the scalar set carried by Row.
// TIMESTAMP is treated as binary only when the driver hands back bytes, which is
// the SQL Server rowversion case; date/time drivers return time.Time instead.
func normalizeValue(databaseTypeName string, value any) any {
	typeName := strings.ToUpper(databaseTypeName)
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		switch {
		case binaryTypes[typeName]:
			return typed
		case decimalTypes[typeName]:
			s := string(typed)
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				return json.Number(s)
			}
			return s
		case integerTypes[typeName]:
			if n, err := strconv.ParseInt(string(typed), 10, 64); err == nil {
				return n
			}
		case floatTypes[typeName]:
			if f, err := strconv.ParseFloat(string(typed), 64); err == nil {
				return f
			}
		}
		return string(typed)
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case float32:
		return float64(typed)
	default:
		return value
	}
}
