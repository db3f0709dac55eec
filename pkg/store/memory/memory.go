// Package memory implements store.Store in memory. Data is lost on restart.
// Useful for testing and development.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"annistats/pkg/store"
)

// Store keeps all documents in plain slices guarded by one RWMutex.
type Store struct {
	mu            sync.RWMutex
	players       []store.Player
	stats         []store.PlayerStats
	seasons       []store.Season
	games         []store.Game
	participation []store.Participation
	elo           []store.EloPoint
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Close is a no-op for memory storage.
func (s *Store) Close() error {
	return nil
}

// PutPlayer stores a player, replacing any existing document with the same ID.
func (s *Store) PutPlayer(ctx context.Context, p store.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.players {
		if s.players[i].ID == p.ID {
			s.players[i] = p
			return nil
		}
	}
	s.players = append(s.players, p)
	return nil
}

// PlayerByIGN matches the latest IGN case-insensitively.
func (s *Store) PlayerByIGN(ctx context.Context, ign string) (*store.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.players {
		if strings.EqualFold(s.players[i].LatestIGN, ign) {
			p := s.players[i]
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

// PutPlayerStats stores per-season stats, replacing the existing entry.
func (s *Store) PutPlayerStats(ctx context.Context, st store.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.stats {
		if s.stats[i].PlayerID == st.PlayerID && s.stats[i].SeasonID == st.SeasonID {
			s.stats[i] = st
			return nil
		}
	}
	s.stats = append(s.stats, st)
	return nil
}

// PlayerStatsFor looks up one player's stats for one season.
func (s *Store) PlayerStatsFor(ctx context.Context, playerID, seasonID string) (*store.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.stats {
		if s.stats[i].PlayerID == playerID && s.stats[i].SeasonID == seasonID {
			st := s.stats[i]
			return &st, nil
		}
	}
	return nil, store.ErrNotFound
}

// PutSeason stores a season, replacing any existing document with the same ID.
func (s *Store) PutSeason(ctx context.Context, season store.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.seasons {
		if s.seasons[i].ID == season.ID {
			s.seasons[i] = season
			return nil
		}
	}
	s.seasons = append(s.seasons, season)
	return nil
}

// Seasons returns all seasons ordered by number.
func (s *Store) Seasons(ctx context.Context) ([]store.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Season, len(s.seasons))
	copy(out, s.seasons)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ActiveSeason returns the season flagged active.
func (s *Store) ActiveSeason(ctx context.Context) (*store.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.seasons {
		if s.seasons[i].IsActive {
			season := s.seasons[i]
			return &season, nil
		}
	}
	return nil, store.ErrNotFound
}

// SeasonByNumber returns the season with the given number.
func (s *Store) SeasonByNumber(ctx context.Context, number int) (*store.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.seasons {
		if s.seasons[i].Number == number {
			season := s.seasons[i]
			return &season, nil
		}
	}
	return nil, store.ErrNotFound
}

// LatestSeason returns the season with the highest number.
func (s *Store) LatestSeason(ctx context.Context) (*store.Season, error) {
	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	if len(seasons) == 0 {
		return nil, store.ErrNotFound
	}
	season := seasons[len(seasons)-1]
	return &season, nil
}

// PutGame stores a game.
func (s *Store) PutGame(ctx context.Context, g store.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.games {
		if s.games[i].ID == g.ID {
			s.games[i] = g
			return nil
		}
	}
	s.games = append(s.games, g)
	return nil
}

// GamesBySeason returns the season's games ordered by start time.
func (s *Store) GamesBySeason(ctx context.Context, seasonID string) ([]store.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var games []store.Game
	for i := range s.games {
		if s.games[i].SeasonID == seasonID {
			games = append(games, s.games[i])
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].StartedAt.Before(games[j].StartedAt) })
	return games, nil
}

// PutParticipation stores one participation entry.
func (s *Store) PutParticipation(ctx context.Context, p store.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participation = append(s.participation, p)
	return nil
}

// ParticipationByGame returns all participation entries for a game.
func (s *Store) ParticipationByGame(ctx context.Context, gameID string) ([]store.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []store.Participation
	for i := range s.participation {
		if s.participation[i].GameID == gameID {
			entries = append(entries, s.participation[i])
		}
	}
	return entries, nil
}

// AppendEloPoint stores one elo history entry.
func (s *Store) AppendEloPoint(ctx context.Context, p store.EloPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elo = append(s.elo, p)
	return nil
}

// EloHistory returns the player's elo series for a season, oldest first.
func (s *Store) EloHistory(ctx context.Context, playerID, seasonID string) ([]store.EloPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var points []store.EloPoint
	for i := range s.elo {
		if s.elo[i].PlayerID == playerID && s.elo[i].SeasonID == seasonID {
			points = append(points, s.elo[i])
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].CreatedAt.Before(points[j].CreatedAt) })
	return points, nil
}

// Find scans one collection and returns documents matching the filter.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	docs, err := s.collectionDocs(collection)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for _, doc := range docs {
		if limit > 0 && len(results) >= limit {
			break
		}
		if store.MatchFilter(doc, filter) {
			results = append(results, doc)
		}
	}
	return results, nil
}

func (s *Store) collectionDocs(collection string) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	toDocs := func(items interface{}) ([]map[string]interface{}, error) {
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		var docs []map[string]interface{}
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	switch collection {
	case "Player":
		return toDocs(s.players)
	case "PlayerStats":
		return toDocs(s.stats)
	case "Season":
		return toDocs(s.seasons)
	case "Game":
		return toDocs(s.games)
	case "GameParticipation":
		return toDocs(s.participation)
	case "EloHistory":
		return toDocs(s.elo)
	default:
		return nil, store.ErrNotFound
	}
}
