package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gorilla/mux"

	"annistats/pkg/config"
	"annistats/pkg/httpx"
	"annistats/pkg/server/monitor"
	"annistats/pkg/store"
)

var startTime = time.Now()

// Handlers serves the document-store-backed endpoints: players, seasons,
// games, participation, elo history, and the restricted custom query.
type Handlers struct {
	store       store.Store
	playerCache *ristretto.Cache[string, *store.Profile]

	dataMonitor    *monitor.StorageMonitor
	archiveMonitor *monitor.StorageMonitor
}

// NewHandlers creates the handler set over the given store.
func NewHandlers(st store.Store, dataMonitor, archiveMonitor *monitor.StorageMonitor) (*Handlers, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *store.Profile]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create player cache: %w", err)
	}
	return &Handlers{
		store:          st,
		playerCache:    cache,
		dataMonitor:    dataMonitor,
		archiveMonitor: archiveMonitor,
	}, nil
}

// Close releases the player cache.
func (h *Handlers) Close() {
	h.playerCache.Close()
}

// resolveSeason picks the season for a request: an explicit number wins,
// otherwise the active season, otherwise the latest one.
func (h *Handlers) resolveSeason(ctx context.Context, seasonParam string) (*store.Season, error) {
	if seasonParam != "" {
		number, err := strconv.Atoi(seasonParam)
		if err != nil {
			return nil, fmt.Errorf("season must be a number")
		}
		return h.store.SeasonByNumber(ctx, number)
	}
	season, err := h.store.ActiveSeason(ctx)
	if err == nil {
		return season, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return h.store.LatestSeason(ctx)
}

// HandlePlayer handles GET /api/player/{ign}?season=N.
func (h *Handlers) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	ign := Sanitize(mux.Vars(r)["ign"])
	seasonParam := r.URL.Query().Get("season")

	cacheKey := ign + "|" + seasonParam
	if profile, ok := h.playerCache.Get(cacheKey); ok {
		httpx.RespondJSON(w, http.StatusOK, profile)
		return
	}

	ctx := r.Context()
	player, err := h.store.PlayerByIGN(ctx, ign)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "Player not found")
			return
		}
		h.internalError(w, "fetch player", err)
		return
	}

	season, err := h.resolveSeason(ctx, seasonParam)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "Season not found")
			return
		}
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := h.store.PlayerStatsFor(ctx, player.ID, season.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "Player has no stats for this season")
			return
		}
		h.internalError(w, "fetch player stats", err)
		return
	}

	profile := &store.Profile{
		Player:              *player,
		SeasonID:            season.ID,
		Elo:                 stats.Elo,
		Wins:                stats.Wins,
		Losses:              stats.Losses,
		WinStreak:           stats.WinStreak,
		LoseStreak:          stats.LoseStreak,
		BiggestWinStreak:    stats.BiggestWinStreak,
		BiggestLosingStreak: stats.BiggestLosingStreak,
	}
	h.playerCache.SetWithTTL(cacheKey, profile, 1, config.PlayerCacheTTL)
	httpx.RespondJSON(w, http.StatusOK, profile)
}

// HandleSeasons handles GET /api/seasons[?active=true].
func (h *Handlers) HandleSeasons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("active") == "true" {
		season, err := h.store.ActiveSeason(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httpx.RespondErrorString(w, http.StatusNotFound, "No active season found")
				return
			}
			h.internalError(w, "fetch active season", err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, season)
		return
	}

	seasons, err := h.store.Seasons(ctx)
	if err != nil {
		h.internalError(w, "fetch seasons", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, seasons)
}

// HandleSeasonByNumber handles GET /api/seasons/{number}.
func (h *Handlers) HandleSeasonByNumber(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["number"]
	number, err := strconv.Atoi(raw)
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "season number must be an integer")
		return
	}

	season, err := h.store.SeasonByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("Season %d not found", number))
			return
		}
		h.internalError(w, "fetch season", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, season)
}

// HandleGames handles GET /api/games?season=N.
func (h *Handlers) HandleGames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	season, err := h.resolveSeason(ctx, r.URL.Query().Get("season"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "No seasons found")
			return
		}
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	games, err := h.store.GamesBySeason(ctx, season.ID)
	if err != nil {
		h.internalError(w, "fetch game history", err)
		return
	}
	if games == nil {
		games = []store.Game{}
	}
	httpx.RespondJSON(w, http.StatusOK, games)
}

// HandleParticipation handles GET /api/games/{gameId}/participation.
func (h *Handlers) HandleParticipation(w http.ResponseWriter, r *http.Request) {
	gameID := Sanitize(mux.Vars(r)["gameId"])
	if gameID == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "gameId is required")
		return
	}

	entries, err := h.store.ParticipationByGame(r.Context(), gameID)
	if err != nil {
		h.internalError(w, "fetch game participation", err)
		return
	}
	if entries == nil {
		entries = []store.Participation{}
	}
	httpx.RespondJSON(w, http.StatusOK, entries)
}

// HandleEloHistory handles GET /api/elo/{ign}?season=N.
func (h *Handlers) HandleEloHistory(w http.ResponseWriter, r *http.Request) {
	ign := Sanitize(mux.Vars(r)["ign"])
	ctx := r.Context()

	player, err := h.store.PlayerByIGN(ctx, ign)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("Player '%s' not found", ign))
			return
		}
		h.internalError(w, "fetch player", err)
		return
	}

	season, err := h.resolveSeason(ctx, r.URL.Query().Get("season"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "Season not found")
			return
		}
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	points, err := h.store.EloHistory(ctx, player.ID, season.ID)
	if err != nil {
		h.internalError(w, "fetch elo history", err)
		return
	}
	if len(points) == 0 {
		httpx.RespondErrorString(w, http.StatusNotFound, "No Elo history found.")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, points)
}

// CustomQueryRequest is the POST /api/custom-query payload.
type CustomQueryRequest struct {
	Collection string                 `json:"collection"`
	Query      map[string]interface{} `json:"query"`
	Limit      int                    `json:"limit,omitempty"`
}

// HandleCustomQuery handles restricted ad-hoc lookups. Only a small
// operator allow-list is accepted; anything else is rejected up front.
func (h *Handlers) HandleCustomQuery(w http.ResponseWriter, r *http.Request) {
	var req CustomQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Collection == "" || req.Query == nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "collection and query are required")
		return
	}
	if !store.KnownCollection(req.Collection) {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("unknown collection %q", req.Collection))
		return
	}
	if err := store.ValidateFilter(req.Query); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid query payload: %w", err))
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > config.CustomQueryLimit {
		limit = config.CustomQueryLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.CustomQueryTimeout)
	defer cancel()

	results, err := h.store.Find(ctx, req.Collection, req.Query, limit)
	if err != nil {
		h.internalError(w, "run custom query", err)
		return
	}
	if results == nil {
		results = []map[string]interface{}{}
	}
	httpx.RespondJSON(w, http.StatusOK, results)
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Status          string `json:"status"`
	Uptime          string `json:"uptime"`
	DataBytes       int64  `json:"dataBytes"`
	ArchiveBytes    int64  `json:"archiveBytes"`
	BufferedSamples int    `json:"bufferedSamples"`
}

// BufferLener reports the pending sample count (implemented by the sampler's buffer).
type BufferLener interface {
	Len() int
}

// HandleStatus returns service health, uptime, and storage usage.
func (h *Handlers) HandleStatus(buffer BufferLener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Status: "healthy",
			Uptime: time.Since(startTime).Round(time.Second).String(),
		}
		if buffer != nil {
			resp.BufferedSamples = buffer.Len()
		}
		if h.dataMonitor != nil {
			if used, err := h.dataMonitor.GetUsage(); err == nil {
				resp.DataBytes = used
			}
		}
		if h.archiveMonitor != nil {
			if used, err := h.archiveMonitor.GetUsage(); err == nil {
				resp.ArchiveBytes = used
			}
		}
		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, action string, err error) {
	log.Printf("Failed to %s: %v", action, err)
	httpx.RespondErrorString(w, http.StatusInternalServerError, "Internal Server Error")
}
