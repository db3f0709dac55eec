package playercount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Sample is one timestamped snapshot of numeric metrics from the upstream
// server list. The metric set is dynamic: whatever numeric fields the
// upstream happens to report become metrics.
type Sample struct {
	Timestamp time.Time
	Metrics   map[string]float64
}

// DayKey returns the local-calendar-date key (YYYY-MM-DD) that partitions
// archive files.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DayKeyOf returns the day key for the sample's timestamp.
func (s Sample) DayKey() string {
	return DayKey(s.Timestamp)
}

// ExtractMetrics converts a raw upstream object into a metric mapping.
// Two generations of archive lines exist: the flat era, where every numeric
// top-level field is a metric, and the newer era, where per-server numbers
// live under a nested "counts" object. Both must keep working, so the
// extractor accepts either shape in the same line. If nothing matched, a
// top-level "count" is used as a last-resort single metric.
func ExtractMetrics(raw map[string]interface{}) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range raw {
		if k == "timestamp" {
			continue
		}
		if k == "counts" {
			if nested, ok := v.(map[string]interface{}); ok {
				for nk, nv := range nested {
					if f, ok := asFiniteNumber(nv); ok {
						out[nk] = f
					}
				}
			}
			continue
		}
		if f, ok := asFiniteNumber(v); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		if f, ok := asFiniteNumber(raw["count"]); ok {
			out["count"] = f
		}
	}
	return out
}

// asFiniteNumber reports whether v is a finite JSON number.
func asFiniteNumber(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseLine decodes one archived NDJSON line into a Sample. Lines without a
// parseable timestamp are rejected; callers drop them and keep reading.
func ParseLine(line []byte) (Sample, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Sample{}, fmt.Errorf("invalid JSON line: %w", err)
	}
	tsField, ok := raw["timestamp"].(string)
	if !ok {
		return Sample{}, fmt.Errorf("line has no timestamp field")
	}
	ts, err := time.Parse(time.RFC3339Nano, tsField)
	if err != nil {
		return Sample{}, fmt.Errorf("invalid timestamp %q: %w", tsField, err)
	}
	return Sample{
		Timestamp: ts.Local(),
		Metrics:   ExtractMetrics(raw),
	}, nil
}

// MarshalJSON flattens the sample into the wire shape used both on disk and
// in query responses: {"timestamp": "...", "<metric>": N, ...} with metric
// keys in stable sorted order.
func (s Sample) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(s.Metrics))
	for k := range s.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"timestamp":`)
	ts, err := json.Marshal(s.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	for _, k := range keys {
		buf.WriteByte(',')
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(s.Metrics[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
