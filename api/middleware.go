package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/kjk/phonebook/httputil"
	"github.com/kjk/phonebook/log"
)

func withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// health checks would drown everything else
		if r.URL.Path == "/ping" {
			h.ServeHTTP(w, r)
			return
		}
		timeStart := time.Now()
		cw := httputil.NewCapturingResponseWriter(w)
		h.ServeHTTP(cw, r)
		dur := time.Since(timeStart)
		log.Verbosef("%s %s %d %d %s\n", r.Method, r.URL.Path, cw.StatusCode, cw.Size, dur)
		log.IfErrf(log.HTTPRequest(r, cw.StatusCode, cw.Size, dur))
	})
}

func withGzip(h http.Handler) http.Handler {
	return gzhttp.GzipHandler(h)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// limit for clients we haven't seen for that long is forgotten
const limiterStaleAfter = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// writeLimiter is a token bucket per client ip
type writeLimiter struct {
	rate  rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastPrune time.Time
}

func newWriteLimiter(perSecond float64, burst int) *writeLimiter {
	if burst < 1 {
		burst = 1
	}
	return &writeLimiter{
		rate:      rate.Limit(perSecond),
		burst:     burst,
		clients:   map[string]*clientLimiter{},
		lastPrune: time.Now(),
	}
}

func (l *writeLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > limiterStaleAfter {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterStaleAfter {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}
	c := l.clients[key]
	if c == nil {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// allow returns 0 if a request from key can proceed or how long the
// client should wait before retrying
func (l *writeLimiter) allow(key string) time.Duration {
	now := time.Now()
	lim := l.get(key, now)
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return 0
	}
	res.CancelAt(now)
	return max(delay, time.Second)
}

// clientIP returns ip address of the client without the port
func clientIP(r *http.Request) string {
	addr := httputil.GetBestRemoteAddress(r)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func withRateLimit(h http.Handler, l *writeLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			h.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if wait := l.allow(ip); wait > 0 {
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			log.Logf("api: rate limited %s %s from %s\n", r.Method, r.URL.Path, ip)
			httputil.ServeError(w, r, http.StatusTooManyRequests, "")
			return
		}
		h.ServeHTTP(w, r)
	})
}
