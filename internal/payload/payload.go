// Package payload decodes the loosely shaped JSON returned by the vendor API.
//
// Upstream resources wrap their arrays in varying field names and report numbers as
// strings or numbers depending on endpoint version. The helpers here resolve a value
// through an ordered list of candidate fields and never fail: a missing or mistyped
// field is reported as absent.
package payload

import (
	"math"
	"strconv"
	"strings"
	"time"

	"netsummary/internal/metrics"
)

// MaxDepth bounds recursive walks over nested payloads
const MaxDepth = 8

// List resolves v to a list of records. A slice is returned as is; for an object the
// first field in fields holding a slice wins; an object with none of the fields is
// treated as a single record.
func List(v interface{}, fields ...string) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	case map[string]interface{}:
		for _, f := range fields {
			if inner, ok := t[f].([]interface{}); ok {
				return inner
			}
		}
		return []interface{}{t}
	default:
		return nil
	}
}

// Records is List restricted to object elements. Elements of any other type are
// dropped and counted under family.
func Records(family string, v interface{}, fields ...string) []map[string]interface{} {
	items := List(v, fields...)
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			Unrecognized(family)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Object returns v as an object
func Object(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Field returns the first present, non-nil value among keys
func Field(m map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first non-empty string among keys. Numbers and booleans are
// formatted.
func String(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the first numeric value among keys. Numeric strings are parsed.
func Float(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := ToFloat(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// FloatPtr is Float returning nil when absent
func FloatPtr(m map[string]interface{}, keys ...string) *float64 {
	if f, ok := Float(m, keys...); ok {
		return &f
	}
	return nil
}

// Bool returns the first boolean-like value among keys
func Bool(m map[string]interface{}, keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "on", "enabled", "1":
				return true, true
			case "false", "no", "off", "disabled", "0":
				return false, true
			}
		case float64:
			return v != 0, true
		}
	}
	return false, false
}

// Time returns the first timestamp among keys. RFC 3339 strings and unix epochs in
// seconds or milliseconds are accepted.
func Time(m map[string]interface{}, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		if t, ok := ToTime(m[k]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToFloat converts a JSON scalar to a float
func ToFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ToTime converts a JSON scalar to a UTC time
func ToTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f), true
		}
	case float64:
		return fromEpoch(t), true
	case int64:
		return fromEpoch(float64(t)), true
	case int:
		return fromEpoch(float64(t)), true
	}
	return time.Time{}, false
}

// epochs above this are milliseconds
const msThreshold = 1e11

func fromEpoch(f float64) time.Time {
	if f > msThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Unrecognized records a payload element that matched none of the known shapes
func Unrecognized(family string) {
	metrics.UnrecognizedShapes.WithLabelValues(family).Inc()
}
