// Package coerce converts raw, untyped source values into typed column
// values. All functions are pure; failures carry the column, the raw
// value, and the target type for per-row reporting.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// FailureKind classifies a coercion failure.
type FailureKind string

const (
	// KindType means the raw value cannot be represented in the target type.
	KindType FailureKind = "type_mismatch"
	// KindNull means the value was null/missing for a non-nullable column
	// without a default.
	KindNull FailureKind = "null_violation"
	// KindDanglingReference means a reference value matched no key in the
	// target table's written key set.
	KindDanglingReference FailureKind = "dangling_reference"
)

// Error is a coercion failure for a single column value.
type Error struct {
	Column string
	Raw    any
	Target manifest.ColumnType
	Kind   FailureKind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("column %q: cannot coerce %v to %s: %s", e.Column, e.Raw, e.Target, e.Reason)
}

func fail(col manifest.Column, raw any, kind FailureKind, reason string) error {
	return &Error{Column: col.Name, Raw: raw, Target: col.Type, Kind: kind, Reason: reason}
}

// Dangling builds the failure for a reference value with no matching key
// in the target table.
func Dangling(col manifest.Column, raw any, targetTable string) error {
	return &Error{
		Column: col.Name,
		Raw:    raw,
		Target: col.Type,
		Kind:   KindDanglingReference,
		Reason: fmt.Sprintf("no row in table %q has this key", targetTable),
	}
}

// Value coerces a raw source value into the column's declared type.
// A nil or missing value resolves to the declared default if present,
// then to an explicit nil if the column is nullable, and otherwise fails.
// Reference columns are coerced with As against their relationship
// target; Value rejects them.
func Value(col manifest.Column, raw any) (any, error) {
	if col.Type == manifest.TypeReference {
		return nil, fail(col, raw, KindType, "reference columns are coerced against their relationship target")
	}
	return valueAs(col, col.Type, raw)
}

// As coerces a raw value using an explicit target type while reporting
// failures against the given column. The load orchestrator uses it for
// reference columns, whose physical type is the relationship target
// column's declared type.
func As(col manifest.Column, target manifest.ColumnType, raw any) (any, error) {
	return valueAs(col, target, raw)
}

func valueAs(col manifest.Column, target manifest.ColumnType, raw any) (any, error) {
	if isMissing(col, target, raw) {
		if col.Default != nil {
			return convert(col, target, col.Default)
		}
		if col.Nullable {
			return nil, nil
		}
		return nil, fail(col, raw, KindNull, "value is null and column is not nullable")
	}
	return convert(col, target, raw)
}

// isMissing reports whether a raw value counts as null/missing. An empty
// string is missing for every type but text, so CSV rows can leave
// non-text fields blank. A blank reference cell is always a missing key,
// even when the target key column is text.
func isMissing(col manifest.Column, target manifest.ColumnType, raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	if !ok || s != "" {
		return false
	}
	return target != manifest.TypeText || col.Type == manifest.TypeReference
}

func convert(col manifest.Column, target manifest.ColumnType, raw any) (any, error) {
	switch target {
	case manifest.TypeText:
		return toText(col, raw)
	case manifest.TypeInteger:
		return toInteger(col, raw)
	case manifest.TypeFloat:
		return toFloat(col, raw)
	case manifest.TypeBoolean:
		return toBoolean(col, raw)
	case manifest.TypeTimestamp:
		return toTimestamp(col, raw)
	default:
		return nil, fail(col, raw, KindType, fmt.Sprintf("unsupported target type %q", target))
	}
}

func toText(col manifest.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return nil, fail(col, raw, KindType, fmt.Sprintf("unexpected value of type %T", raw))
	}
}

func toInteger(col manifest.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fail(col, raw, KindType, "number has a fractional part")
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fail(col, raw, KindType, "not a decimal integer")
		}
		return n, nil
	default:
		return nil, fail(col, raw, KindType, fmt.Sprintf("unexpected value of type %T", raw))
	}
}

func toFloat(col manifest.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fail(col, raw, KindType, "not a decimal number")
		}
		return f, nil
	default:
		return nil, fail(col, raw, KindType, fmt.Sprintf("unexpected value of type %T", raw))
	}
}

// toBoolean accepts true/false (case-insensitive) and 1/0, whether they
// arrive as strings, numbers, or native booleans.
func toBoolean(col manifest.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		return intToBool(col, raw, int64(v))
	case int64:
		return intToBool(col, raw, v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fail(col, raw, KindType, "not a recognized boolean token")
		}
		return intToBool(col, raw, int64(v))
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fail(col, raw, KindType, "not a recognized boolean token")
	default:
		return nil, fail(col, raw, KindType, fmt.Sprintf("unexpected value of type %T", raw))
	}
}

func intToBool(col manifest.Column, raw any, n int64) (any, error) {
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return nil, fail(col, raw, KindType, "not a recognized boolean token")
}

// toTimestamp accepts the RFC 3339 profile of ISO 8601 and nothing else.
func toTimestamp(col manifest.Column, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fail(col, raw, KindType, fmt.Sprintf("unexpected value of type %T", raw))
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, fail(col, raw, KindType, "not an RFC 3339 timestamp")
	}
	return ts, nil
}

// KeyString renders a typed value in the canonical form used for key-set
// membership and physical upsert keys. Typed values from Value/As always
// render the same way for the same logical key.
func KeyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case bool:
		return strconv.FormatBool(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	case time.Time:
		return k.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// SplitList normalizes the raw value of a many-to-many reference column
// into individual key values. JSON sources supply a native array; CSV
// sources supply a ";"-delimited string.
func SplitList(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ";")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	default:
		return []any{raw}
	}
}
