// Package badger implements store.Store on BadgerDB. Documents are stored
// as JSON values under typed key prefixes; the few collections that need
// ordered or scoped reads (games per season, elo history per player+season)
// get composite keys so lookups are prefix scans instead of full scans.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"annistats/pkg/store"
)

const (
	playerPrefix = "player/"
	statsPrefix  = "stats/"
	seasonPrefix = "season/"
	gamePrefix   = "game/"
	partPrefix   = "part/"
	eloPrefix    = "elo/"
)

// Store implements store.Store using BadgerDB (LSM tree).
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool
}

// New creates a BadgerDB document store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// The dataset is a few tens of thousands of small documents; keep
	// Badger's footprint far below its server-grade defaults.
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithNumMemtables(3).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20).
		WithMaxLevels(4).
		WithNumCompactors(1).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// Close shuts down BadgerDB cleanly.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs Badger's value log garbage collection to reclaim disk space.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

func (s *Store) putJSON(key string, doc interface{}) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) getJSON(key string, out interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return store.ErrNotFound
	}
	return err
}

// scanPrefix visits every value under a key prefix, checking ctx
// periodically so slow scans cannot outlive a cancelled request.
func (s *Store) scanPrefix(ctx context.Context, prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = 100

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutPlayer stores a player document.
func (s *Store) PutPlayer(ctx context.Context, p store.Player) error {
	return s.putJSON(playerPrefix+p.ID, p)
}

// PlayerByIGN scans players for a case-insensitive latest-IGN match.
func (s *Store) PlayerByIGN(ctx context.Context, ign string) (*store.Player, error) {
	var found *store.Player
	err := s.scanPrefix(ctx, []byte(playerPrefix), func(val []byte) error {
		if found != nil {
			return nil
		}
		var p store.Player
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		if strings.EqualFold(p.LatestIGN, ign) {
			found = &p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

// PutPlayerStats stores a per-season stats document.
func (s *Store) PutPlayerStats(ctx context.Context, st store.PlayerStats) error {
	return s.putJSON(statsPrefix+st.PlayerID+"/"+st.SeasonID, st)
}

// PlayerStatsFor looks up a player's stats for one season.
func (s *Store) PlayerStatsFor(ctx context.Context, playerID, seasonID string) (*store.PlayerStats, error) {
	var st store.PlayerStats
	if err := s.getJSON(statsPrefix+playerID+"/"+seasonID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PutSeason stores a season document.
func (s *Store) PutSeason(ctx context.Context, season store.Season) error {
	return s.putJSON(seasonPrefix+season.ID, season)
}

// Seasons returns all seasons ordered by number.
func (s *Store) Seasons(ctx context.Context) ([]store.Season, error) {
	var seasons []store.Season
	err := s.scanPrefix(ctx, []byte(seasonPrefix), func(val []byte) error {
		var season store.Season
		if err := json.Unmarshal(val, &season); err != nil {
			return err
		}
		seasons = append(seasons, season)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].Number < seasons[j].Number })
	return seasons, nil
}

// ActiveSeason returns the season flagged active.
func (s *Store) ActiveSeason(ctx context.Context) (*store.Season, error) {
	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	for i := range seasons {
		if seasons[i].IsActive {
			return &seasons[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// SeasonByNumber returns the season with the given number.
func (s *Store) SeasonByNumber(ctx context.Context, number int) (*store.Season, error) {
	seasons, err := s.Seasons(ctx)
	if err != nil {
		return nil, err
	}
	for i := range seasons {
		if seasons[i].Number == number {
			return &seasons[i], nil
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
	return &seasons[len(seasons)-1], nil
}

// PutGame stores a game under its season.
func (s *Store) PutGame(ctx context.Context, g store.Game) error {
	return s.putJSON(gamePrefix+g.SeasonID+"/"+g.ID, g)
}

// GamesBySeason returns the season's games ordered by start time.
func (s *Store) GamesBySeason(ctx context.Context, seasonID string) ([]store.Game, error) {
	var games []store.Game
	err := s.scanPrefix(ctx, []byte(gamePrefix+seasonID+"/"), func(val []byte) error {
		var g store.Game
		if err := json.Unmarshal(val, &g); err != nil {
			return err
		}
		games = append(games, g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(games, func(i, j int) bool { return games[i].StartedAt.Before(games[j].StartedAt) })
	return games, nil
}

// PutParticipation stores one player's participation in a game.
func (s *Store) PutParticipation(ctx context.Context, p store.Participation) error {
	return s.putJSON(partPrefix+p.GameID+"/"+p.PlayerID, p)
}

// ParticipationByGame returns all participation entries for a game.
func (s *Store) ParticipationByGame(ctx context.Context, gameID string) ([]store.Participation, error) {
	var entries []store.Participation
	err := s.scanPrefix(ctx, []byte(partPrefix+gameID+"/"), func(val []byte) error {
		var p store.Participation
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		entries = append(entries, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendEloPoint stores one elo history entry. The key embeds a hash of
// (player, season) plus the big-endian timestamp, so a prefix scan yields
// the series already ordered by time.
func (s *Store) AppendEloPoint(ctx context.Context, p store.EloPoint) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode elo point: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eloKey(p.PlayerID, p.SeasonID, p.CreatedAt), value)
	})
}

// EloHistory returns the player's elo series for a season, oldest first.
func (s *Store) EloHistory(ctx context.Context, playerID, seasonID string) ([]store.EloPoint, error) {
	var points []store.EloPoint
	err := s.scanPrefix(ctx, eloSeriesPrefix(playerID, seasonID), func(val []byte) error {
		var p store.EloPoint
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// Find scans one collection and returns documents matching the filter.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	prefix, err := collectionPrefix(collection)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	err = s.scanPrefix(ctx, prefix, func(val []byte) error {
		if limit > 0 && len(results) >= limit {
			return nil
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(val, &doc); err != nil {
			return err
		}
		if store.MatchFilter(doc, filter) {
			results = append(results, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func collectionPrefix(collection string) ([]byte, error) {
	switch collection {
	case "Player":
		return []byte(playerPrefix), nil
	case "PlayerStats":
		return []byte(statsPrefix), nil
	case "Season":
		return []byte(seasonPrefix), nil
	case "Game":
		return []byte(gamePrefix), nil
	case "GameParticipation":
		return []byte(partPrefix), nil
	case "EloHistory":
		return []byte(eloPrefix), nil
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}

// eloSeriesPrefix hashes (player, season) into a fixed-width series prefix.
func eloSeriesPrefix(playerID, seasonID string) []byte {
	hash := xxhash.Sum64String(playerID + "|" + seasonID)

	prefix := make([]byte, len(eloPrefix)+8)
	copy(prefix, eloPrefix)
	binary.BigEndian.PutUint64(prefix[len(eloPrefix):], hash)
	return prefix
}

func eloKey(playerID, seasonID string, ts time.Time) []byte {
	prefix := eloSeriesPrefix(playerID, seasonID)

	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(ts.UnixNano()))
	return key
}
