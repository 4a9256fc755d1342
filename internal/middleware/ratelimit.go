package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/narravox/narravox/backend/pkg/utils"
)

// Rule allows Attempts requests per Window for one key.
type Rule struct {
	Attempts int
	Window   time.Duration
}

// Limits used by the story routes.
var (
	StartRule    = Rule{Attempts: 3, Window: time.Minute}
	ContinueRule = Rule{Attempts: 5, Window: 30 * time.Second}
	ProfileRule  = Rule{Attempts: 3, Window: 2 * time.Minute}
)

const evictAfter = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a keyed token-bucket limiter.
type Limiter struct {
	rule Rule
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLimiter creates a limiter enforcing rule per key.
func NewLimiter(rule Rule) *Limiter {
	if rule.Attempts < 1 {
		rule.Attempts = 1
	}
	return &Limiter{rule: rule, now: time.Now, entries: make(map[string]*entry)}
}

// Allow reports whether a request for key may proceed and, if not, how long to wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		every := rate.Every(l.rule.Window / time.Duration(l.rule.Attempts))
		e = &entry{limiter: rate.NewLimiter(every, l.rule.Attempts)}
		l.entries[key] = e
	}
	e.lastSeen = now
	if len(l.entries) > 1000 {
		l.evict(now)
	}

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) evict(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > evictAfter {
			delete(l.entries, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429. Requests are keyed by the
// session id route parameter, or by client address when there is none.
func RateLimit(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "id")
			if key == "" {
				key = clientAddr(r)
			}
			ok, wait := l.Allow(key)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				utils.RespondErrorCode(w, http.StatusTooManyRequests, "rate_limited",
					"Too many requests. Please wait a moment before trying again.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
