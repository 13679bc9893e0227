package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type accountLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AccountLimiter keeps one token bucket per account. Buckets idle for
// longer than limiterIdleTTL are dropped.
type AccountLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*accountLimiter
	lastPrune time.Time
	now       func() time.Time
}

// NewAccountLimiter allows perSecond requests per account with the given
// burst. A non-positive perSecond disables limiting.
func NewAccountLimiter(perSecond float64, burst int) *AccountLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &AccountLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*accountLimiter),
		now:      time.Now,
	}
}

// Allow reports whether accountID may make another request now.
func (l *AccountLimiter) Allow(accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for id, al := range l.limiters {
			if now.Sub(al.lastSeen) > limiterIdleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastPrune = now
	}

	al, ok := l.limiters[accountID]
	if !ok {
		al = &accountLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[accountID] = al
	}
	al.lastSeen = now
	return al.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the account's budget with 429. The
// account is taken from the {account_id} route parameter.
func (l *AccountLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(chi.URLParam(r, "account_id")) {
			if l.limit != rate.Inf && l.limit > 0 {
				retry := time.Duration(float64(time.Second) / float64(l.limit))
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			}
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many orders, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
