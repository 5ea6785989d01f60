package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/clinio/clinio/httpx"
)

// Response headers set on every request passing through the middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Middleware wraps handlers with the limiter. Rejected requests get a 429
// with Retry-After; admitted ones are forwarded with the X-RateLimit-*
// headers stamped on the response.
func (l *Limiter) Middleware() httpx.MiddlewareFunc {
	return func(next httpx.HandlerFunc) httpx.HandlerFunc {
		return func(c httpx.Context) error {
			res := l.Check(c.Request().Context(), l.keyFn(c))

			header := c.Response().Header()
			header.Set(HeaderLimit, strconv.Itoa(res.Limit))
			header.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
			header.Set(HeaderReset, strconv.FormatInt(res.ResetAt.UnixMilli(), 10))

			if !res.Allowed {
				retryAfter := int64(time.Until(res.ResetAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				header.Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
				return c.JSON(httpx.StatusTooManyRequests, map[string]string{
					"error":   "Too many requests",
					"message": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
				})
			}
			return next(c)
		}
	}
}
