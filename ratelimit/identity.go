package ratelimit

import (
	"strings"

	"github.com/clinio/clinio/httpx"
)

// KeyFunc derives the identity a request is counted under. Different policies
// rate-limit "by client" or "by account" by swapping this function.
type KeyFunc func(httpx.Context) string

// SubjectHeader names the header carrying the authenticated subject, set by
// the upstream auth layer.
const SubjectHeader = "user-id"

// ByClientIP keys requests on the caller's network address, preferring the
// first hop of X-Forwarded-For when a proxy sits in front.
func ByClientIP(c httpx.Context) string {
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// BySubject keys requests on the authenticated account so one user cannot
// spread load across addresses. Unauthenticated callers share a bucket.
func BySubject(c httpx.Context) string {
	if subject := c.Request().Header.Get(SubjectHeader); subject != "" {
		return subject
	}
	return "anonymous"
}
