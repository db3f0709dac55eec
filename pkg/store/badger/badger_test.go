package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"annistats/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerByIGN_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	player := store.Player{
		ID:                "p1",
		LatestIGN:         "NexusBreaker",
		MinecraftAccounts: []string{"uuid-1"},
	}
	if err := s.PutPlayer(ctx, player); err != nil {
		t.Fatalf("PutPlayer failed: %v", err)
	}

	got, err := s.PlayerByIGN(ctx, "nexusbreaker")
	if err != nil {
		t.Fatalf("PlayerByIGN failed: %v", err)
	}
	if got.ID != "p1" {
		t.Errorf("Expected player p1, got %s", got.ID)
	}

	if _, err := s.PlayerByIGN(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPlayerStatsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats := store.PlayerStats{
		PlayerID: "p1",
		SeasonID: "s2",
		Elo:      1450,
		Wins:     20,
		Losses:   5,
	}
	if err := s.PutPlayerStats(ctx, stats); err != nil {
		t.Fatalf("PutPlayerStats failed: %v", err)
	}

	got, err := s.PlayerStatsFor(ctx, "p1", "s2")
	if err != nil {
		t.Fatalf("PlayerStatsFor failed: %v", err)
	}
	if got.Elo != 1450 || got.Wins != 20 {
		t.Errorf("Unexpected stats: %+v", got)
	}

	if _, err := s.PlayerStatsFor(ctx, "p1", "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing season, got %v", err)
	}
}

func TestSeasons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, season := range []store.Season{
		{ID: "s3", Number: 3, IsActive: true},
		{ID: "s1", Number: 1},
		{ID: "s2", Number: 2},
	} {
		if err := s.PutSeason(ctx, season); err != nil {
			t.Fatalf("PutSeason failed: %v", err)
		}
	}

	seasons, err := s.Seasons(ctx)
	if err != nil {
		t.Fatalf("Seasons failed: %v", err)
	}
	if len(seasons) != 3 {
		t.Fatalf("Expected 3 seasons, got %d", len(seasons))
	}
	for i, season := range seasons {
		if season.Number != i+1 {
			t.Errorf("Expected seasons ordered by number, got %+v", seasons)
			break
		}
	}

	active, err := s.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("ActiveSeason failed: %v", err)
	}
	if active.Number != 3 {
		t.Errorf("Expected active season 3, got %d", active.Number)
	}

	byNumber, err := s.SeasonByNumber(ctx, 2)
	if err != nil {
		t.Fatalf("SeasonByNumber failed: %v", err)
	}
	if byNumber.ID != "s2" {
		t.Errorf("Expected s2, got %s", byNumber.ID)
	}

	latest, err := s.LatestSeason(ctx)
	if err != nil {
		t.Fatalf("LatestSeason failed: %v", err)
	}
	if latest.Number != 3 {
		t.Errorf("Expected latest season 3, got %d", latest.Number)
	}
}

func TestGamesAndParticipation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	games := []store.Game{
		{ID: "g2", SeasonID: "s1", StartedAt: base.Add(time.Hour)},
		{ID: "g1", SeasonID: "s1", StartedAt: base},
		{ID: "g3", SeasonID: "s2", StartedAt: base},
	}
	for _, g := range games {
		if err := s.PutGame(ctx, g); err != nil {
			t.Fatalf("PutGame failed: %v", err)
		}
	}

	got, err := s.GamesBySeason(ctx, "s1")
	if err != nil {
		t.Fatalf("GamesBySeason failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 games in s1, got %d", len(got))
	}
	if got[0].ID != "g1" || got[1].ID != "g2" {
		t.Errorf("Expected games ordered by start time, got %+v", got)
	}

	for _, p := range []store.Participation{
		{GameID: "g1", PlayerID: "p1", Team: "red", Kills: 5, Won: true},
		{GameID: "g1", PlayerID: "p2", Team: "blue", Kills: 3},
		{GameID: "g2", PlayerID: "p1", Team: "green"},
	} {
		if err := s.PutParticipation(ctx, p); err != nil {
			t.Fatalf("PutParticipation failed: %v", err)
		}
	}

	entries, err := s.ParticipationByGame(ctx, "g1")
	if err != nil {
		t.Fatalf("ParticipationByGame failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 participation entries for g1, got %d", len(entries))
	}
}

func TestEloHistoryOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Inserted out of order; the key encoding must bring them back sorted
	for _, offset := range []int{3, 1, 2, 0} {
		point := store.EloPoint{
			PlayerID:  "p1",
			SeasonID:  "s1",
			Elo:       1400 + offset*25,
			CreatedAt: base.Add(time.Duration(offset) * time.Hour),
		}
		if err := s.AppendEloPoint(ctx, point); err != nil {
			t.Fatalf("AppendEloPoint failed: %v", err)
		}
	}
	// Same player, different season: must not leak into the series
	if err := s.AppendEloPoint(ctx, store.EloPoint{
		PlayerID: "p1", SeasonID: "s2", Elo: 9999, CreatedAt: base,
	}); err != nil {
		t.Fatalf("AppendEloPoint failed: %v", err)
	}

	points, err := s.EloHistory(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("EloHistory failed: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].CreatedAt.Before(points[i-1].CreatedAt) {
			t.Errorf("Points out of order: %+v", points)
			break
		}
	}
	if points[0].Elo != 1400 || points[3].Elo != 1475 {
		t.Errorf("Unexpected series values: %+v", points)
	}
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		stats := store.PlayerStats{
			PlayerID: string(rune('a' + i - 1)),
			SeasonID: "s1",
			Elo:      1000 + i*100,
		}
		if err := s.PutPlayerStats(ctx, stats); err != nil {
			t.Fatalf("PutPlayerStats failed: %v", err)
		}
	}

	results, err := s.Find(ctx, "PlayerStats", map[string]interface{}{
		"elo": map[string]interface{}{"$gt": float64(1300)},
	}, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 documents with elo > 1300, got %d", len(results))
	}

	limited, err := s.Find(ctx, "PlayerStats", map[string]interface{}{}, 3)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("Expected limit of 3 documents, got %d", len(limited))
	}

	if _, err := s.Find(ctx, "Secrets", nil, 0); err == nil {
		t.Error("Expected unknown collection to be rejected")
	}
}
