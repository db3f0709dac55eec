package config

import "time"

// Server defaults
const (
	DefaultPort           = "8080"
	DefaultDataDir        = "./data/annistats"
	DefaultArchiveDir     = "./playerCounts"
	DefaultPlayerCountURL = "https://shotbow.net/serverList.json"
)

// Player count sampling
const (
	PollInterval = 30 * time.Minute
	FetchTimeout = 15 * time.Second
)

// Flush behavior
const (
	// ShutdownFlushTimeout bounds the final flush on SIGINT/SIGTERM so a
	// slow filesystem cannot hang process exit.
	ShutdownFlushTimeout = 10 * time.Second
)

// Query defaults and limits
const (
	// MaxRawDays is the widest window served at 30-minute resolution.
	// Anything wider is aggregated to daily maxima to bound response size.
	MaxRawDays   = 31
	QueryTimeout = 30 * time.Second
)

// Result cache TTLs. A window that still includes "now" picks up a fresh
// archive file at most once per day, but the pending buffer turns over every
// 30 minutes, so live entries expire well within one sample period.
const (
	CacheTTLLive       = 5 * time.Minute
	CacheTTLHistorical = 24 * time.Hour
	PlayerCacheTTL     = 10 * time.Minute
)

// HTTP server timeouts
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Rate limiting (500 requests per 10 minutes per client, as on the old API)
const (
	RateLimitWindow = 10 * time.Minute
	RateLimitMax    = 500
)

// Custom query limits
const (
	CustomQueryLimit   = 100
	CustomQueryTimeout = 5 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
)
