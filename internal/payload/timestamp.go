package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Numbers above this are read as unix milliseconds rather than seconds
const unixMillisThreshold = 1e11

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// Timestamp reads the first of fields that holds a non-null value. field is
// empty when none does. A present but unparseable value returns an error
// naming that field.
func (p *Payload) Timestamp(fields ...string) (ts time.Time, field string, err error) {
	for _, f := range fields {
		raw, ok := p.Get(f)
		if !ok || raw == nil {
			continue
		}
		ts, err = ParseTimestamp(raw)
		return ts, f, err
	}
	return time.Time{}, "", nil
}

// ParseTimestamp accepts RFC3339 and a few common SQL layouts, date-only
// strings, unix seconds or milliseconds, and time.Time. Results are UTC.
func ParseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC(), nil
	case string:
		s := strings.TrimSpace(ts)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f), nil
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp format %q", ts)
	case float64:
		return fromUnix(ts), nil
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return fromUnix(f), nil
	case int64:
		return fromUnix(float64(ts)), nil
	case int:
		return fromUnix(float64(ts)), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromUnix(f float64) time.Time {
	if math.Abs(f) >= unixMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
