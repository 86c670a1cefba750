// Package warehouse reads derived result sets from the analytical warehouse.
//
// Queries are always parameterized. Only project and dataset identifiers are
// placed into the query text, and those are validated before use.
package warehouse

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParamType is the warehouse type of a query parameter.
type ParamType string

// Supported parameter types
const (
	ParamString  ParamType = "STRING"
	ParamInt64   ParamType = "INT64"
	ParamFloat64 ParamType = "FLOAT64"
	ParamDate    ParamType = "DATE"
	ParamBool    ParamType = "BOOL"
)

// Param is a named query parameter, referenced as @Name in the SQL.
type Param struct {
	Name  string
	Type  ParamType
	Value any
}

// Query is a read only warehouse query.
type Query struct {
	Name   string // short label used in logs and metrics
	SQL    string
	Params []Param
}

// Client runs read only queries against the warehouse.
type Client interface {
	// Query runs q and returns every result row.
	Query(ctx context.Context, q Query) ([]Row, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, q Query) ([]Row, error)

// Query calls f(ctx, q).
func (f ClientFunc) Query(ctx context.Context, q Query) ([]Row, error) { return f(ctx, q) }

// Row is one result row keyed by column name.
type Row map[string]any

// Int64 returns the column as an integer, nil when absent, null or not numeric.
func (r Row) Int64(key string) *int64 {
	switch v := r[key].(type) {
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		n := int64(v)
		return &n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// Float64 returns the column as a float, nil when absent, null or not numeric.
func (r Row) Float64(key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// String returns the column as a string, nil when absent or null.
func (r Row) String(key string) *string {
	switch v := r[key].(type) {
	case nil:
		return nil
	case string:
		return &v
	case int64:
		s := strconv.FormatInt(v, 10)
		return &s
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	case time.Time:
		s := v.Format(time.RFC3339)
		return &s
	default:
		return nil
	}
}

// Bool returns the column as a boolean. Strings such as "True" and "1" are
// accepted; anything else is false.
func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// Time returns the column as a time, nil when absent, null or unparseable.
func (r Row) Time(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return &v
	case string:
		if t, ok := parseTimeString(v); ok {
			return &t
		}
		return nil
	default:
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	time.DateOnly,
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
