package model

import (
	"encoding/json"
	"time"
)

// epochMillisThreshold distinguishes epoch seconds from milliseconds when
// normalizing numeric timestamps (1e12 ms is 2001-09-09).
const epochMillisThreshold = 1e12

// NormalizeTimestamp converts the timestamp representations seen at the
// ingestion boundary to a UTC time.Time. Numeric values are epoch seconds or
// milliseconds; strings are RFC 3339.
func NormalizeTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	case int64:
		return epochToTime(t), nil
	case float64:
		return epochToTime(int64(t)), nil
	default:
		return time.Time{}, &ValidationError{Field: "occurred_at", Reason: "has an unsupported type"}
	}
}

func epochToTime(n int64) time.Time {
	if n >= epochMillisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// UnmarshalJSON accepts occurred_at as an RFC 3339 string or as epoch
// seconds/milliseconds, the forms providers actually send.
func (d *NormalizedEventData) UnmarshalJSON(b []byte) error {
	type plain NormalizedEventData
	aux := struct {
		OccurredAt json.RawMessage `json:"occurred_at"`
		*plain
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.OccurredAt) == 0 || string(aux.OccurredAt) == "null" {
		d.OccurredAt = time.Time{}
		return nil
	}
	var v any
	if err := json.Unmarshal(aux.OccurredAt, &v); err != nil {
		return err
	}
	occurred, err := NormalizeTimestamp(v)
	if err != nil {
		return err
	}
	d.OccurredAt = occurred
	return nil
}
