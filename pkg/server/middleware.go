package server

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"annistats/pkg/httpx"
)

// CORS allows the community dashboards (served from other origins) to call
// the API directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID tags each request with a UUID and logs it on completion.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s (%v) [%s]", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start).Round(time.Millisecond), id)
	})
}

var sanitizePolicy = bluemonday.StrictPolicy()

// SanitizeQuery strips HTML from every query parameter before handlers see
// them. Path variables are sanitized the same way at extraction time.
func SanitizeQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		changed := false
		for key, values := range q {
			for i, value := range values {
				clean := sanitizePolicy.Sanitize(value)
				if clean != value {
					values[i] = clean
					changed = true
				}
			}
			q[key] = values
		}
		if changed {
			r.URL.RawQuery = q.Encode()
		}
		next.ServeHTTP(w, r)
	})
}

// Sanitize strips HTML from a single parameter value.
func Sanitize(value string) string {
	return sanitizePolicy.Sanitize(value)
}

// RateLimiter enforces a per-client request budget over a sliding window
// using token buckets keyed by remote IP.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter allows max requests per window for each client IP.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(max) / window.Seconds()),
		burst:    max,
		lastSeen: 3 * window,
	}
}

// Middleware rejects clients that exceed their budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.allow(ip) {
			httpx.RespondErrorString(w, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, ok := rl.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = client
	}
	client.seen = now

	// Opportunistic cleanup of idle clients keeps the map bounded.
	if len(rl.clients) > 1024 {
		for key, c := range rl.clients {
			if now.Sub(c.seen) > rl.lastSeen {
				delete(rl.clients, key)
			}
		}
	}

	return client.limiter.Allow()
}
