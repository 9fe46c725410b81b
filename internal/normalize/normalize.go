// Package normalize coerces the heterogeneous scalar types that
// database/sql, godror and pgx drivers hand back (decimal strings,
// []byte-encoded numerics, sql.Null* wrappers, NaN) into the plain
// *float64/*int64/*bool pointers pkg/types uses, with nil-vs-zero and
// NaN-vs-error handled in one place. The engine adapters under
// internal/collector scan driver values directly into typed variables and
// do not call this package.
package normalize

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Float64 converts a driver scalar to *float64, returning nil when v is nil,
// an empty string, a SQL NULL wrapper holding no value, or NaN/Inf.
func Float64(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int64:
		return finite(float64(t))
	case int32:
		return finite(float64(t))
	case int:
		return finite(float64(t))
	case []byte:
		return parseFloatString(string(t))
	case string:
		return parseFloatString(t)
	case sql.NullFloat64:
		if !t.Valid {
			return nil, nil
		}
		return finite(t.Float64)
	case sql.NullInt64:
		if !t.Valid {
			return nil, nil
		}
		return finite(float64(t.Int64))
	default:
		return nil, fmt.Errorf("normalize: unsupported float64 source type %T", v)
	}
}

// Int64 converts a driver scalar to *int64.
func Int64(v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case int64:
		return &t, nil
	case int32:
		x := int64(t)
		return &x, nil
	case int:
		x := int64(t)
		return &x, nil
	case float64:
		x := int64(t)
		return &x, nil
	case []byte:
		return parseIntString(string(t))
	case string:
		return parseIntString(t)
	case sql.NullInt64:
		if !t.Valid {
			return nil, nil
		}
		return &t.Int64, nil
	default:
		return nil, fmt.Errorf("normalize: unsupported int64 source type %T", v)
	}
}

// Bool converts a driver scalar to *bool. MySQL-style 0/1 ints and Oracle's
// "Y"/"N" flags are both accepted since adapters see both shapes.
func Bool(v any) (*bool, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case bool:
		return &t, nil
	case int64:
		b := t != 0
		return &b, nil
	case []byte:
		return parseBoolString(string(t))
	case string:
		return parseBoolString(t)
	default:
		return nil, fmt.Errorf("normalize: unsupported bool source type %T", v)
	}
}

// Time converts a driver scalar to *time.Time, passing through time.Time
// values untouched and parsing RFC3339/"2006-01-02 15:04:05" strings.
func Time(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case time.Time:
		return &t, nil
	case *time.Time:
		return t, nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	default:
		return nil, fmt.Errorf("normalize: unsupported time source type %T", v)
	}
}

// Percent clamps a ratio already expressed in [0,1] or [0,100] into a
// percentage in [0,100]. Several engines report cache hit ratio as a
// fraction and others as a percentage already; callers pass the engine's
// native scale and this makes the representation uniform before it reaches
// the threshold engine.
func Percent(ratio float64, alreadyPercent bool) float64 {
	pct := ratio
	if !alreadyPercent {
		pct = ratio * 100
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func finite(f float64) (*float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return &f, nil
}

func parseFloatString(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("normalize: parse float %q: %w", s, err)
	}
	return finite(f)
}

func parseIntString(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil, fmt.Errorf("normalize: parse int %q: %w", s, err)
		}
		i = int64(f)
	}
	return &i, nil
}

func parseBoolString(s string) (*bool, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return nil, nil
	}
	var b bool
	switch s {
	case "Y", "YES", "ON", "TRUE", "1":
		b = true
	case "N", "NO", "OFF", "FALSE", "0":
		b = false
	default:
		return nil, fmt.Errorf("normalize: unrecognized bool string %q", s)
	}
	return &b, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("normalize: parse time %q: no matching layout", s)
}
