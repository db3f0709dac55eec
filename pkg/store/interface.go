// Package store defines the document store backing player, season, and game
// lookups. Implementations: memory (testing), badger (production).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// Player is a community member with one or more Minecraft accounts.
type Player struct {
	ID                      string   `json:"id"`
	DiscordSnowflake        string   `json:"discordSnowflake"`
	LatestIGN               string   `json:"latestIGN"`
	PrimaryMinecraftAccount string   `json:"primaryMinecraftAccount"`
	MinecraftAccounts       []string `json:"minecraftAccounts"`
}

// PlayerStats holds a player's per-season ranked record.
type PlayerStats struct {
	PlayerID            string `json:"playerId"`
	SeasonID            string `json:"seasonId"`
	Elo                 int    `json:"elo"`
	Wins                int    `json:"wins"`
	Losses              int    `json:"losses"`
	WinStreak           int    `json:"winStreak"`
	LoseStreak          int    `json:"loseStreak"`
	BiggestWinStreak    int    `json:"biggestWinStreak"`
	BiggestLosingStreak int    `json:"biggestLosingStreak"`
}

// Season is one ranked season. At most one season is active at a time.
type Season struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Name     string `json:"name,omitempty"`
	IsActive bool   `json:"isActive"`
}

// Game is one finished match within a season.
type Game struct {
	ID        string    `json:"id"`
	SeasonID  string    `json:"seasonId"`
	Map       string    `json:"map,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// Participation records one player's involvement in one game.
type Participation struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Team     string `json:"team,omitempty"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Won      bool   `json:"won"`
}

// EloPoint is one entry in a player's per-season Elo history.
type EloPoint struct {
	PlayerID  string    `json:"playerId"`
	SeasonID  string    `json:"seasonId"`
	Elo       int       `json:"elo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the merged player + season stats response served by the API.
type Profile struct {
	Player
	SeasonID            string `json:"seasonId"`
	Elo                 int    `json:"elo"`
	Wins                int    `json:"wins"`
	Losses              int    `json:"losses"`
	WinStreak           int    `json:"winStreak"`
	LoseStreak          int    `json:"loseStreak"`
	BiggestWinStreak    int    `json:"biggestWinStreak"`
	BiggestLosingStreak int    `json:"biggestLosingStreak"`
}

// Store is the document store interface consumed by the HTTP layer.
type Store interface {
	PutPlayer(ctx context.Context, p Player) error
	// PlayerByIGN matches the latest in-game name case-insensitively.
	PlayerByIGN(ctx context.Context, ign string) (*Player, error)

	PutPlayerStats(ctx context.Context, s PlayerStats) error
	PlayerStatsFor(ctx context.Context, playerID, seasonID string) (*PlayerStats, error)

	PutSeason(ctx context.Context, s Season) error
	Seasons(ctx context.Context) ([]Season, error)
	ActiveSeason(ctx context.Context) (*Season, error)
	SeasonByNumber(ctx context.Context, number int) (*Season, error)
	// LatestSeason returns the season with the highest number.
	LatestSeason(ctx context.Context) (*Season, error)

	PutGame(ctx context.Context, g Game) error
	GamesBySeason(ctx context.Context, seasonID string) ([]Game, error)

	PutParticipation(ctx context.Context, p Participation) error
	ParticipationByGame(ctx context.Context, gameID string) ([]Participation, error)

	AppendEloPoint(ctx context.Context, p EloPoint) error
	// EloHistory returns points for a player and season ordered by time.
	EloHistory(ctx context.Context, playerID, seasonID string) ([]EloPoint, error)

	// Find runs a restricted ad-hoc filter over one collection. Filters
	// are validated with ValidateFilter before execution.
	Find(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]map[string]interface{}, error)

	Close() error
}

// Collections queryable through Find.
var Collections = []string{"Player", "PlayerStats", "Season", "Game", "GameParticipation", "EloHistory"}

// KnownCollection reports whether name is a queryable collection.
func KnownCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}
