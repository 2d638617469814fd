package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client's bucket is kept before the
// next sweep removes it.
const limiterIdleTTL = 10 * time.Minute

// clientLimiter applies a token bucket per client address.
type clientLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientBucket
	rps        float64
	burst      int
	trustProxy bool
	lastSweep  time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int, trustProxy bool) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		clients:    make(map[string]*clientBucket),
		rps:        rps,
		burst:      burst,
		trustProxy: trustProxy,
		lastSweep:  time.Now(),
	}
}

// clientKey derives the client identity. X-Forwarded-For is only honored
// when the server sits behind a trusted proxy.
func (l *clientLimiter) clientKey(r *http.Request) string {
	if l.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				fwd = fwd[:i]
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
