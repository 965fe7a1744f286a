package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// defaultPerimeterRate caps any single client IP across the whole API,
// regardless of identity. The per-identity sliding windows run behind it.
const defaultPerimeterRate = "300-M"

// NewPerimeterStore builds the production limiter store over the shared
// Redis client.
func NewPerimeterStore(redisClient *redis.Client) (limiter.Store, error) {
	return redisstore.NewStore(redisClient)
}

// PerimeterRateLimit returns a coarse per-IP limiter applied at the router
// level, before authentication, as a first line against anonymous abuse.
func PerimeterRateLimit(store limiter.Store, rateStr string, trustProxy bool) (func(http.Handler) http.Handler, error) {
	if rateStr == "" {
		rateStr = defaultPerimeterRate
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(store, rate)
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r, trustProxy)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler, nil
}
