package playercount

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"annistats/pkg/config"
)

// Broadcaster receives every successfully fetched sample, typically to fan
// it out to live WebSocket clients.
type Broadcaster interface {
	Broadcast(v interface{}) error
}

// Sampler polls the upstream server list on a half-hour wall-clock grid,
// buffers the stamped samples for the current day, and flushes them to the
// archive at midnight, on date rollover, and at shutdown.
type Sampler struct {
	url     string
	client  *http.Client
	buffer  *Buffer
	archive *Archive
	hub     Broadcaster // optional

	now func() time.Time
}

// NewSampler creates a sampler writing to the given archive. hub may be nil.
func NewSampler(endpoint string, archive *Archive, hub Broadcaster) *Sampler {
	return &Sampler{
		url:     endpoint,
		client:  &http.Client{Timeout: config.FetchTimeout},
		buffer:  NewBuffer(),
		archive: archive,
		hub:     hub,
		now:     time.Now,
	}
}

// Buffer exposes the pending buffer (used by tests and the status endpoint).
func (s *Sampler) Buffer() *Buffer {
	return s.buffer
}

// RunPollLoop fires at the next wall-clock half-hour boundary, then every 30
// minutes on a fixed interval. Aligning to the grid keeps sample timestamps
// predictable regardless of when the process started. Fetch failures are
// logged and the schedule continues unconditionally.
func (s *Sampler) RunPollLoop(ctx context.Context) {
	delay := nextHalfHourDelay(s.now())
	log.Printf("Player count polling starts in %v (aligned to :00/:30)", delay.Round(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.fetchOnce(ctx)

	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetchOnce(ctx)
		}
	}
}

// RunMidnightFlush flushes the buffer at each local midnight. The delay is
// recomputed after every fire instead of using a fixed 24h ticker because
// calendar days are not constant-length (DST).
func (s *Sampler) RunMidnightFlush(ctx context.Context) {
	for {
		delay := nextMidnightDelay(s.now())
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Flush("midnight")
		}
	}
}

// Flush drains the buffer and writes it to the archive. An empty buffer is a
// no-op. A failed write is logged and the drained samples are dropped: the
// pipeline deliberately fails open rather than letting a bad disk grow the
// buffer without bound, at the cost of losing that day's unflushed samples.
func (s *Sampler) Flush(reason string) {
	s.flushBatch(reason, s.buffer.Drain())
}

// FlushWithTimeout runs the shutdown flush in a goroutine and waits at most
// for the context deadline, so a hung filesystem cannot stall process exit.
func (s *Sampler) FlushWithTimeout(ctx context.Context, reason string) {
	done := make(chan struct{})
	go func() {
		s.Flush(reason)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("WARNING: %s flush did not finish in time: %v", reason, ctx.Err())
	}
}

func (s *Sampler) flushBatch(reason string, batch *Batch) {
	if batch == nil {
		return
	}
	if err := s.archive.Append(batch.DayKey, batch.Samples); err != nil {
		// Fail-open: the batch is already drained and will not be retried.
		log.Printf("WARNING: failed to flush player count buffer (%s), %d samples for %s lost: %v",
			reason, len(batch.Samples), batch.DayKey, err)
		return
	}
	log.Printf("Flushed %d player count samples to %s (%s)", len(batch.Samples), s.archive.FilePath(batch.DayKey), reason)
}

// fetchOnce performs one poll cycle: GET the endpoint with a cache-busting
// query parameter, stamp the body with the current instant, and buffer it.
// Any network, timeout, or parse error skips the cycle; there is no retry
// inside a cycle because the next grid slot is never more than 30m away.
func (s *Sampler) fetchOnce(ctx context.Context) {
	sample, err := s.fetch(ctx)
	if err != nil {
		log.Printf("Error fetching player counts from endpoint: %v", err)
		return
	}

	if rolled := s.buffer.Add(sample); rolled != nil {
		s.flushBatch("date-change", rolled)
	}

	if s.hub != nil {
		if err := s.hub.Broadcast(sample); err != nil {
			log.Printf("Failed to broadcast player count sample: %v", err)
		}
	}
}

func (s *Sampler) fetch(ctx context.Context) (Sample, error) {
	endpoint, err := cacheBustURL(s.url, s.now())
	if err != nil {
		return Sample{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Sample{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Sample{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	return Sample{
		Timestamp: s.now(),
		Metrics:   ExtractMetrics(raw),
	}, nil
}

// cacheBustURL appends the current epoch millis as a query parameter so
// intermediate caches never serve a stale server list.
func cacheBustURL(endpoint string, now time.Time) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nextHalfHourDelay returns the time until the next :00 or :30 wall-clock
// boundary. A fire exactly on the boundary schedules the following one.
func nextHalfHourDelay(now time.Time) time.Duration {
	var next time.Time
	if now.Minute() < 30 {
		next = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 30, 0, 0, now.Location())
	} else {
		next = time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	}
	return next.Sub(now)
}

// nextMidnightDelay returns the time until the next local midnight.
func nextMidnightDelay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
