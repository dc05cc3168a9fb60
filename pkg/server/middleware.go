package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/apierror"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type requestIDKey struct{}

// requestIDMiddleware stamps every request with a correlation id, reusing
// an inbound X-Request-Id when the caller already supplied one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// perAddressLimiter hands out one token-bucket limiter per remote address,
// lazily created on first use.
type perAddressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newPerAddressLimiter(eventsPerSecond float64, burst int) *perAddressLimiter {
	return &perAddressLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(eventsPerSecond),
		burst:    burst,
	}
}

func (l *perAddressLimiter) allow(addr string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[addr] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitedPaths are the endpoints the Control Surface throttles per
// remote address, ahead of any other request validation.
var rateLimitedPaths = map[string]struct{}{
	"/interop/inbox": {},
	"/tools/execute": {},
}

// rateLimitMiddleware enforces a per-remote-address token bucket on
// rateLimitedPaths; every other path passes through untouched.
func rateLimitMiddleware(limiter *perAddressLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, limited := rateLimitedPaths[r.URL.Path]; limited {
				if !limiter.allow(remoteAddr(r)) {
					apierror.TooManyRequests(w, r, 1)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readonlyMiddleware enforces public read-only mode: when enabled, every
// non-GET is rejected and GETs are rejected unless the path is allowlisted.
func readonlyMiddleware(enabled bool, allowedGetPaths map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodGet {
				apierror.Forbidden(w, r, "this node is running in public read-only mode")
				return
			}
			if _, ok := allowedGetPaths[r.URL.Path]; !ok {
				apierror.Forbidden(w, r, "this endpoint is not exposed in public read-only mode")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
