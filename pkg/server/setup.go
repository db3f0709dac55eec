package server

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"annistats/pkg/config"
	"annistats/pkg/live"
	"annistats/pkg/playercount"
	"annistats/pkg/server/monitor"
	"annistats/pkg/store"
	badgerstore "annistats/pkg/store/badger"
)

// Config holds server configuration.
type Config struct {
	Port           string
	DataDir        string
	ArchiveDir     string
	PlayerCountURL string
	RateLimitMax   int
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		Port:           getEnv("PORT", config.DefaultPort),
		DataDir:        getEnv("ANNISTATS_DATA_DIR", config.DefaultDataDir),
		ArchiveDir:     getEnv("ANNISTATS_ARCHIVE_DIR", config.DefaultArchiveDir),
		PlayerCountURL: getEnv("ANNISTATS_PLAYER_COUNT_URL", config.DefaultPlayerCountURL),
		RateLimitMax:   getEnvInt("ANNISTATS_RATE_LIMIT_MAX", config.RateLimitMax),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	return cfg
}

// InitializeStore opens the BadgerDB document store.
func InitializeStore(cfg Config) (store.Store, error) {
	log.Println("Initializing BadgerDB document store...")
	st, err := badgerstore.New(badgerstore.Config{Path: cfg.DataDir})
	if err != nil {
		return nil, err
	}
	log.Println("BadgerDB document store initialized successfully")
	return st, nil
}

// NewRouter wires all routes and middleware.
func NewRouter(cfg Config, handlers *Handlers, pcHandler *playercount.Handler, hub *live.Hub, buffer BufferLener) *mux.Router {
	router := mux.NewRouter()

	router.Use(CORS)
	router.Use(RequestID)
	router.Use(SanitizeQuery)

	limiter := NewRateLimiter(cfg.RateLimitMax, config.RateLimitWindow)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware)

	api.HandleFunc("/playercount", pcHandler.HandleQuery).Methods(http.MethodGet)
	api.HandleFunc("/playercount/live", hub.HandleWS).Methods(http.MethodGet)
	api.HandleFunc("/player/{ign}", handlers.HandlePlayer).Methods(http.MethodGet)
	api.HandleFunc("/seasons", handlers.HandleSeasons).Methods(http.MethodGet)
	api.HandleFunc("/seasons/{number}", handlers.HandleSeasonByNumber).Methods(http.MethodGet)
	api.HandleFunc("/games", handlers.HandleGames).Methods(http.MethodGet)
	api.HandleFunc("/games/{gameId}/participation", handlers.HandleParticipation).Methods(http.MethodGet)
	api.HandleFunc("/elo/{ign}", handlers.HandleEloHistory).Methods(http.MethodGet)
	api.HandleFunc("/custom-query", handlers.HandleCustomQuery).Methods(http.MethodPost)
	api.HandleFunc("/status", handlers.HandleStatus(buffer)).Methods(http.MethodGet)

	return router
}

// NewMonitors creates disk usage monitors for the data and archive dirs.
func NewMonitors(cfg Config) (dataMonitor, archiveMonitor *monitor.StorageMonitor) {
	return monitor.NewStorageMonitor(cfg.DataDir), monitor.NewStorageMonitor(cfg.ArchiveDir)
}

// getEnv gets a string from an environment variable or returns the default.
func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt gets an int from an environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}
