package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter is a fixed-window per-client request budget kept in redis, so
// restarts do not reset the window.
type Limiter struct {
	log    zerolog.Logger
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(log zerolog.Logger, client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		log:    log,
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts one request for key and reports whether it fits the budget.
// Redis failures fail open; throttling is not worth an outage.
func (l *Limiter) Allow(r *http.Request, key string) bool {
	n, err := l.client.Incr(r.Context(), "ratelimit:"+key).Result()
	if err != nil {
		l.log.Warn().Err(err).Msg("rate limiter unavailable")

		return true
	}
	if n == 1 {
		l.client.Expire(r.Context(), "ratelimit:"+key, l.window)
	}

	return n <= int64(l.limit)
}

// Middleware throttles by client IP.
func (l *Limiter) Middleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !l.Allow(r, ip) {
			respondError(w, http.StatusTooManyRequests, "try again later")

			return
		}

		next(w, r, ps)
	}
}
