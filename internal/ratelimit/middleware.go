package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/rawises/storefront-api/internal/common"
)

// Handler enforces a fixed-window rate limit before delegating to the next handler.
type Handler struct {
	Name    string
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	Logger  zerolog.Logger
}

// New builds a Redis-backed limiter from a formatted rate such as "10-M".
func New(rdb *redis.Client, name, rate string, logger zerolog.Logger) (Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Handler{}, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit:" + name})
	if err != nil {
		return Handler{}, err
	}
	return Handler{Name: name, Limiter: limiter.New(store, parsed), Logger: logger}, nil
}

// CallerKey identifies the caller by user id when authenticated, otherwise by client IP.
func CallerKey(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return "user:" + id
	}
	return "ip:" + common.ClientIP(r)
}

// Middleware implements the http.Handler middleware interface. Limiter
// failures are logged and the request is let through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Key
		if keyFn == nil {
			keyFn = CallerKey
		}
		key := strings.TrimSpace(keyFn(r))
		res, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			h.Logger.Warn().Err(err).Str("limiter", h.Name).Msg("rate_limiter_unavailable")
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))
		if res.Reached {
			headers.Set("Retry-After", strconv.FormatInt(retryAfter(res.Reset), 10))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfter(resetUnix int64) int64 {
	secs := resetUnix - time.Now().Unix()
	if secs < 0 {
		return 0
	}
	return secs
}
