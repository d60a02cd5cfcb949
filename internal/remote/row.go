package remote

import (
	"encoding/json"
	"strconv"
	"time"
)

// String returns a column as a string, or "" when absent
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// Float returns a nullable numeric column
func (r Row) Float(col string) *float64 {
	switch v := r[col].(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// Bool returns a nullable boolean column. SQLite returns booleans as integers.
func (r Row) Bool(col string) *bool {
	var b bool
	switch v := r[col].(type) {
	case bool:
		b = v
	case int64:
		b = v != 0
	case int:
		b = v != 0
	default:
		return nil
	}
	return &b
}

// Time returns a column holding unix milliseconds or a time value
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case int64:
		return time.UnixMilli(v)
	case float64:
		return time.UnixMilli(int64(v))
	}
	return time.Time{}
}

// Decode unmarshals a JSON column into dst. Absent or null columns leave dst
// untouched.
func (r Row) Decode(col string, dst any) error {
	var data []byte
	switch v := r[col].(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		// Already decoded by the store; round-trip through JSON to convert
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// Millis converts a time to the store's timestamp representation
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
