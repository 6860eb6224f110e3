package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a creation time as stored in documents. Older records carry
// epoch milliseconds or nothing at all, so decoding never fails: anything
// unreadable becomes the zero time and sorts as the oldest entry.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(isoMillis))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed.UTC()
		}
		return nil
	}

	var millis float64
	if err := json.Unmarshal(data, &millis); err == nil && millis > 0 {
		t.Time = time.UnixMilli(int64(millis)).UTC()
	}
	return nil
}
