/*
Package dynadoc – type coercion engine.

Cast is the load direction (raw store/user value → canonical in-memory value);
Dump is the save direction (canonical value → storable scalar). Both map nil
to nil, and Cast is idempotent: casting an already-typed value returns it
unchanged.
*/
package dynadoc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Cast converts a raw value to the canonical in-memory representation for a
// type tag. On failure the raw value is returned unchanged together with a
// CastError, so callers at the load boundary can keep the value as-is while
// callers at the construction boundary can record the failure.
func Cast(tag FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch tag {
	case FieldTypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}

	case FieldTypeInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case float64:
			return int64(math.Trunc(v)), nil
		case float32:
			return int64(math.Trunc(float64(v))), nil
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return int64(math.Trunc(f)), nil
			}
			return raw, castFailure(tag, raw)
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, nil
			}
			return raw, castFailure(tag, raw)
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, nil
			}
			return raw, castFailure(tag, raw)
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeDate:
		switch v := raw.(type) {
		case time.Time:
			return truncateDate(v), nil
		case string:
			if t, err := time.Parse(dateLayout, v); err == nil {
				return truncateDate(t), nil
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return truncateDate(t), nil
			}
			return raw, castFailure(tag, raw)
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UTC(), nil
			}
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC(), nil
			}
			return raw, castFailure(tag, raw)
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeSet:
		switch v := raw.(type) {
		case []any:
			return dedupe(v), nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return dedupe(out), nil
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeArray:
		switch v := raw.(type) {
		case []any:
			return v, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeMap:
		switch v := raw.(type) {
		case map[string]any:
			return v, nil
		default:
			return raw, castFailure(tag, raw)
		}

	case FieldTypeBinary:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return raw, castFailure(tag, raw)
		}
	}
	return raw, castFailure(tag, raw)
}

// Dump converts a canonical in-memory value to its storable scalar encoding.
// Values that are not in canonical form are cast first, so Dump(Cast(v)) and
// Dump(v) agree for representable values.
func Dump(tag FieldType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	typed, err := Cast(tag, value)
	if err != nil {
		return value, err
	}
	switch tag {
	case FieldTypeDate:
		if t, ok := typed.(time.Time); ok {
			return t.Format(dateLayout), nil
		}
	case FieldTypeDateTime:
		if t, ok := typed.(time.Time); ok {
			return t.UnixMilli(), nil
		}
	}
	return typed, nil
}

func castFailure(tag FieldType, raw any) error {
	return NewError(fmt.Sprintf("cannot cast %T value %q to %s", raw, fmt.Sprintf("%v", raw), tag),
		WithCode(ErrCast), WithContext(map[string]any{"type": string(tag), "value": raw}))
}

func truncateDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func dedupe(in []any) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(in))
	for _, v := range in {
		k := fmt.Sprintf("%v", v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// keyString renders a dumped key value for comparison and hashing.
func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
