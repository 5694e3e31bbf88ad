package model

import (
	"strconv"
	"time"
)

// localLayouts are the zone-less layouts the portal backend emits for
// LocalDateTime values. They are interpreted in the local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp converts a decoded JSON value into a time. It accepts
// RFC 3339 strings, zone-less ISO strings, epoch milliseconds (number or
// numeric string) and the [y, m, d, h, min, s, nanos] array form.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		return parseTimeString(t)
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t), true
	case []any:
		return parseTimeArray(t)
	}
	return time.Time{}, false
}

func parseTimeString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

func parseTimeArray(parts []any) (time.Time, bool) {
	if len(parts) < 3 {
		return time.Time{}, false
	}
	vals := make([]int, 7)
	for i := 0; i < len(parts) && i < 7; i++ {
		f, ok := parts[i].(float64)
		if !ok {
			return time.Time{}, false
		}
		vals[i] = int(f)
	}
	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], vals[6], time.Local), true
}
