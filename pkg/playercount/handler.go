package playercount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	"annistats/pkg/config"
	"annistats/pkg/httpx"
)

// Handler serves GET /api/playercount, memoizing aggregated payloads in a
// ristretto cache keyed by the resolved window and granularity.
type Handler struct {
	aggregator *Aggregator
	cache      *ristretto.Cache[string, *Payload]
	now        func() time.Time
}

// NewHandler creates the query handler over the given archive.
func NewHandler(archive *Archive) (*Handler, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Payload]{
		NumCounters: 10_000,
		MaxCost:     100_000, // cost = bucketed points per payload
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &Handler{
		aggregator: NewAggregator(archive),
		cache:      cache,
		now:        time.Now,
	}, nil
}

// Close releases the result cache.
func (h *Handler) Close() {
	h.cache.Close()
}

// HandleQuery handles GET /api/playercount?start=&end=&date=.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	now := h.now()

	window, err := ResolveWindow(params.Get("start"), params.Get("end"), params.Get("date"), now)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	key := cacheKey(window)
	if payload, ok := h.cache.Get(key); ok {
		httpx.RespondJSON(w, http.StatusOK, payload)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	payload, err := h.aggregator.Aggregate(ctx, window)
	if err != nil {
		log.Printf("Player count aggregation failed for %s..%s: %v",
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.cache.SetWithTTL(key, payload, int64(len(payload.Data))+1, h.cacheTTL(window, now))
	httpx.RespondJSON(w, http.StatusOK, payload)
}

// cacheTTL picks a short TTL for windows that still include today (new
// samples keep arriving) and a long one for closed historical windows.
func (h *Handler) cacheTTL(window Window, now time.Time) time.Duration {
	if window.End.Before(startOfDay(now)) {
		return config.CacheTTLHistorical
	}
	return config.CacheTTLLive
}

// cacheKey builds a deterministic digest of the resolved query parameters.
func cacheKey(window Window) string {
	raw := fmt.Sprintf("playerCounts-%d-%d-%s", window.Start.UnixMilli(), window.End.UnixMilli(), window.Granularity())
	return fmt.Sprintf("%016x", xxhash.Sum64String(raw))
}
