package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a client may make per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// Methods lists the HTTP methods that are limited. Empty means the
	// mutating methods POST, PUT, PATCH and DELETE.
	Methods []string
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed by the default KeyFunc. With none, the client is
	// always the connection address.
	TrustedProxies []netip.Prefix
}

// window counts requests of one client in the current and previous fixed
// windows; the sliding estimate interpolates between them.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max     int
	size    time.Duration
	methods map[string]bool
	key     func(*http.Request) string

	mu      sync.Mutex
	clients map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}
	l := &limiter{
		max:     cfg.Max,
		size:    cfg.Window,
		methods: make(map[string]bool, len(methods)),
		key:     cfg.KeyFunc,
		clients: make(map[string]*window),
	}
	for _, m := range methods {
		l.methods[strings.ToUpper(m)] = true
	}
	if l.key == nil {
		l.key = proxies(cfg.TrustedProxies).clientIP
	}
	return l
}

// take records a request for key at now if it fits in the window.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	w, found := l.clients[key]
	switch {
	case !found:
		w = &window{start: start}
		l.clients[key] = w
	case start.Sub(w.start) == l.size:
		w.prev, w.curr, w.start = w.curr, 0, start
	case start.Sub(w.start) > l.size:
		w.prev, w.curr, w.start = 0, 0, start
	}

	weight := 1 - float64(now.Sub(w.start))/float64(l.size)
	used := w.prev*weight + w.curr
	reset = w.start.Add(l.size)
	if used+1 > float64(l.max) {
		return 0, reset, false
	}

	w.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// sweep drops clients idle for more than two windows.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.clients {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.clients, key)
		}
	}
}

func (l *limiter) sweepEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// RateLimit returns a middleware that limits each client to cfg.Max
// requests per sliding cfg.Window for the configured methods. Other methods
// pass through untouched. Limited responses carry X-RateLimit-* headers;
// rejected ones get 429 with a JSON error body and Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine that forgets idle
// clients until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.sweepEvery(ctx, 2*l.size)
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			remaining, reset, ok := l.take(l.key(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				retry := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				var e jx.Encoder
				e.ObjStart()
				e.FieldStart("error")
				e.Str("rate limit exceeded")
				e.ObjEnd()
				_, _ = w.Write(e.Bytes())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ParseTrustedProxies parses CIDRs or single addresses.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, errors.Errorf("invalid trusted proxy %q", e)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

type proxies []netip.Prefix

func (ps proxies) trusted(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range ps {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the connection address unless it is a trusted proxy. Then
// the rightmost X-Forwarded-For hop that is not a trusted proxy wins, falling
// back to X-Real-IP.
func (ps proxies) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !ps.trusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !ps.trusted(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}
