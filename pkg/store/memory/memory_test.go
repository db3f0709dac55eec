package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"annistats/pkg/store"
)

func TestPutPlayerReplacesByID(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.PutPlayer(ctx, store.Player{ID: "p1", LatestIGN: "OldName"}); err != nil {
		t.Fatalf("PutPlayer failed: %v", err)
	}
	if err := s.PutPlayer(ctx, store.Player{ID: "p1", LatestIGN: "NewName"}); err != nil {
		t.Fatalf("PutPlayer failed: %v", err)
	}

	if _, err := s.PlayerByIGN(ctx, "OldName"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected old IGN to be gone, got %v", err)
	}
	got, err := s.PlayerByIGN(ctx, "newname")
	if err != nil {
		t.Fatalf("PlayerByIGN failed: %v", err)
	}
	if got.ID != "p1" {
		t.Errorf("Expected p1, got %s", got.ID)
	}
}

func TestSeasonLookups(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.ActiveSeason(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}
	if _, err := s.LatestSeason(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	for _, season := range []store.Season{
		{ID: "s2", Number: 2, IsActive: true},
		{ID: "s1", Number: 1},
	} {
		if err := s.PutSeason(ctx, season); err != nil {
			t.Fatalf("PutSeason failed: %v", err)
		}
	}

	seasons, err := s.Seasons(ctx)
	if err != nil {
		t.Fatalf("Seasons failed: %v", err)
	}
	if len(seasons) != 2 || seasons[0].Number != 1 {
		t.Errorf("Expected seasons ordered by number, got %+v", seasons)
	}

	active, err := s.ActiveSeason(ctx)
	if err != nil || active.ID != "s2" {
		t.Errorf("Expected active s2, got %+v (%v)", active, err)
	}

	latest, err := s.LatestSeason(ctx)
	if err != nil || latest.Number != 2 {
		t.Errorf("Expected latest season 2, got %+v (%v)", latest, err)
	}
}

func TestEloHistorySortedPerSeason(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{2, 0, 1} {
		if err := s.AppendEloPoint(ctx, store.EloPoint{
			PlayerID:  "p1",
			SeasonID:  "s1",
			Elo:       1400 + offset,
			CreatedAt: base.Add(time.Duration(offset) * time.Hour),
		}); err != nil {
			t.Fatalf("AppendEloPoint failed: %v", err)
		}
	}
	if err := s.AppendEloPoint(ctx, store.EloPoint{PlayerID: "p1", SeasonID: "s2", Elo: 1}); err != nil {
		t.Fatalf("AppendEloPoint failed: %v", err)
	}

	points, err := s.EloHistory(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("EloHistory failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Elo != 1400+i {
			t.Errorf("Expected sorted series, got %+v", points)
			break
		}
	}
}

func TestFindWithFilterAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := s.PutGame(ctx, store.Game{
			ID:        string(rune('a' + i - 1)),
			SeasonID:  "s1",
			Winner:    "red",
			StartedAt: time.Date(2024, 5, i, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("PutGame failed: %v", err)
		}
	}

	results, err := s.Find(ctx, "Game", map[string]interface{}{"winner": "red"}, 2)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected limit 2, got %d", len(results))
	}

	none, err := s.Find(ctx, "Game", map[string]interface{}{"winner": "blue"}, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no matches, got %d", len(none))
	}

	if _, err := s.Find(ctx, "Nope", nil, 0); err == nil {
		t.Error("Expected unknown collection error")
	}
}
