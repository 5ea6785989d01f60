package httpx

import (
	"context"
	"time"
)

// TimeoutMiddleware bounds each request's context so a slow dependency cannot
// hold a handler indefinitely. Store and queue calls made with the request
// context abort when the deadline passes.
func TimeoutMiddleware(d time.Duration) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			if d <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
