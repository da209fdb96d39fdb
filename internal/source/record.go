package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownLabelValue is used for label fields missing from a record.
const UnknownLabelValue = "unknown"

var (
	ErrFieldMissing = errors.New("field missing")
	ErrNotNumeric   = errors.New("value is not numeric")
)

// Record is one row or object returned by a data source. Values keep the
// type produced by the source: numbers, strings, booleans, timestamps or
// nested structures.
type Record map[string]any

// Label returns the string form of a field, or UnknownLabelValue when the
// field is absent or null.
func (r Record) Label(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return UnknownLabelValue
	}
	return FormatValue(v)
}

// Float returns a field as a sample value.
func (r Record) Float(field string) (float64, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}

	f, err := ToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return f, nil
}

// ToFloat64 converts numbers, numeric strings and booleans to float64.
func ToFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseFloat(string(val))
	case string:
		return parseFloat(val)
	case []byte:
		return parseFloat(string(val))
	case interface{ Float64() (float64, bool) }:
		// big.Rat and friends, e.g. BigQuery NUMERIC columns
		f, _ := val.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return f, nil
}

// FormatValue renders a record value as a label value.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val, 64)
	case float32:
		return formatFloat(float64(val), 32)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
