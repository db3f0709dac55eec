package playercount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"annistats/pkg/config"
)

// ErrInvalidRange marks a client input error (start after end), as opposed
// to an internal aggregation fault.
var ErrInvalidRange = errors.New("start must be <= end")

// Meta describes how a query window was resolved and aggregated.
type Meta struct {
	Aggregated  bool   `json:"aggregated"`
	Granularity string `json:"granularity"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Points      int    `json:"points"`
	RangeDays   int    `json:"rangeDays"`
}

// Payload is a full aggregated query response. Data points reuse the Sample
// shape: the timestamp is the bucket start and each metric carries the
// maximum observed within the bucket.
type Payload struct {
	Meta Meta     `json:"meta"`
	Data []Sample `json:"data"`
}

// Window is a resolved query time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// RangeDays returns the window length in whole days, rounded up.
func (w Window) RangeDays() int {
	return int(math.Ceil(w.End.Sub(w.Start).Hours() / 24))
}

// Aggregated reports whether the window is wide enough to force daily
// buckets instead of 30-minute ones.
func (w Window) Aggregated() bool {
	return w.RangeDays() > config.MaxRawDays
}

// Granularity returns the bucket width label for the window.
func (w Window) Granularity() string {
	if w.Aggregated() {
		return "day"
	}
	return "30m"
}

// ResolveWindow turns the raw query parameters into an effective window:
//
//   - an explicit date produces that single local day;
//   - explicit start/end default missing bounds to epoch zero and now;
//   - with neither, the window is the trailing 31 days ending today.
//
// The end bound is clamped to now; a start past the resolved end is a
// client error.
func ResolveWindow(startParam, endParam, dateParam string, now time.Time) (Window, error) {
	loc := now.Location()
	var start, end time.Time

	switch {
	case dateParam != "":
		day, err := parseDateParam(dateParam, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: invalid date %q", ErrInvalidRange, dateParam)
		}
		start = startOfDay(day)
		end = endOfDay(day)
	case startParam != "" || endParam != "":
		if startParam != "" {
			t, err := parseDateParam(startParam, loc)
			if err != nil {
				return Window{}, fmt.Errorf("%w: invalid start %q", ErrInvalidRange, startParam)
			}
			start = startOfDay(t)
		} else {
			start = time.Unix(0, 0).In(loc)
		}
		if endParam != "" {
			t, err := parseDateParam(endParam, loc)
			if err != nil {
				return Window{}, fmt.Errorf("%w: invalid end %q", ErrInvalidRange, endParam)
			}
			end = endOfDay(t)
		} else {
			end = now
		}
	default:
		end = endOfDay(now)
		start = startOfDay(end.AddDate(0, 0, -(config.MaxRawDays - 1)))
	}

	// Never query the future.
	if end.After(now) {
		end = now
	}
	if start.After(end) {
		return Window{}, ErrInvalidRange
	}
	return Window{Start: start, End: end}, nil
}

// parseDateParam accepts plain ISO dates and full RFC 3339 timestamps.
func parseDateParam(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// halfHourFloor truncates to the preceding :00 or :30 local boundary.
func halfHourFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%30, 0, 0, t.Location())
}

// Aggregator reads back an arbitrary window from the archive and buckets the
// samples at the window's granularity.
type Aggregator struct {
	archive *Archive
}

// NewAggregator creates an aggregator over the given archive.
func NewAggregator(archive *Archive) *Aggregator {
	return &Aggregator{archive: archive}
}

// Aggregate scans every archive file, keeps the samples inside the window,
// and merges them into ordered buckets taking the per-metric maximum. The
// max approximates a high-water mark for monotonic-snapshot counters and
// tolerates duplicate or out-of-order samples. Malformed lines are dropped;
// partial data beats a hard failure. An empty archive or window yields zero
// points, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, window Window) (*Payload, error) {
	files, err := a.archive.ListFiles()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := a.archive.ReadAll(file)
		if err != nil {
			// A single unreadable file must not sink the whole query.
			log.Printf("Skipping unreadable archive file: %v", err)
			continue
		}
		for _, line := range lines {
			sample, err := ParseLine(line)
			if err != nil {
				continue
			}
			if sample.Timestamp.Before(window.Start) || sample.Timestamp.After(window.End) {
				continue
			}
			samples = append(samples, sample)
		}
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	aggregated := window.Aggregated()
	buckets := make(map[int64]map[string]float64)
	for _, sample := range samples {
		var bucket time.Time
		if aggregated {
			bucket = startOfDay(sample.Timestamp)
		} else {
			bucket = halfHourFloor(sample.Timestamp)
		}
		key := bucket.UnixMilli()
		existing := buckets[key]
		if existing == nil {
			existing = make(map[string]float64)
			buckets[key] = existing
		}
		for name, value := range sample.Metrics {
			if current, ok := existing[name]; !ok || value > current {
				existing[name] = value
			}
		}
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	data := make([]Sample, 0, len(keys))
	for _, key := range keys {
		data = append(data, Sample{
			Timestamp: time.UnixMilli(key).In(window.Start.Location()),
			Metrics:   buckets[key],
		})
	}

	return &Payload{
		Meta: Meta{
			Aggregated:  aggregated,
			Granularity: window.Granularity(),
			Start:       window.Start.Format(time.RFC3339Nano),
			End:         window.End.Format(time.RFC3339Nano),
			Points:      len(data),
			RangeDays:   window.RangeDays(),
		},
		Data: data,
	}, nil
}
