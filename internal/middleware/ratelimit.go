package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimit enforces a fixed-window per-client limit. Creation requests are
// the only route worth limiting here: each accepted request fans out into
// provider spend.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	limiter := &rateLimiter{
		limit:   limit,
		per:     per,
		windows: make(map[string]*window),
		now:     time.Now,
	}
	return limiter.middleware
}

type rateLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPForRateLimit(r)
		if retryAfter, ok := l.take(ip); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take consumes one slot for key, reporting the wait until the window
// resets when the limit is hit. Expired windows are dropped during the same
// pass so the map does not grow with one entry per client forever.
func (l *rateLimiter) take(key string) (time.Duration, bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, win := range l.windows {
		if now.After(win.resetAt) {
			delete(l.windows, k)
		}
	}

	win, ok := l.windows[key]
	if !ok {
		win = &window{resetAt: now.Add(l.per)}
		l.windows[key] = win
	}
	if win.count >= l.limit {
		return win.resetAt.Sub(now), false
	}
	win.count++
	return 0, true
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
