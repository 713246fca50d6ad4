package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/nextstep/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultRateLimit applies when no rate is configured
	DefaultRateLimit = "20-S"
	rateLimitPrefix  = "nextstep_limiter"
)

// rateLimitKey scopes limits to the caller when authenticated and to the client IP otherwise
func rateLimitKey(r *http.Request) string {
	if owner := request.OwnerID(r); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + request.ClientIP(r)
}

// RateLimit returns ulule/limiter middleware for a formatted rate such as "20-S".
// Counters live in Redis when a client is given and in process memory otherwise.
func RateLimit(redisClient *redis.Client, formatted string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if formatted == "" {
		formatted = DefaultRateLimit
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: rateLimitPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
	} else {
		store = memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
	}

	mw := stdlibmw.NewMiddleware(limiter.New(store, rate),
		stdlibmw.WithKeyGetter(rateLimitKey),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded, slow down")
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate_limiter_failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Rate limiter unavailable")
		}),
	)
	return mw.Handler, nil
}
