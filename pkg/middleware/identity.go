// Package middleware carries the HTTP concerns shared by every route:
// caller identity and transport-level rate limiting.
package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
)

const (
	// HeaderClientID identifies the caller for quota accounting.
	HeaderClientID = "X-Client-Id"
	// HeaderUserID selects the tenant on user-scoped routes.
	HeaderUserID = "X-User-Id"

	// AnonymousCaller is the shared quota bucket for requests that carry no
	// client identification.
	AnonymousCaller = "anonymous"

	userContextKey = "user_id"
)

// CallerID returns the caller identity of the request. Requests without the
// client header all share one anonymous bucket.
func CallerID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(HeaderClientID)); id != "" {
		return id
	}
	return AnonymousCaller
}

// RequireUser extracts the tenant from the user header and stores it on the
// context. Tenant-scoped routes reject requests without it.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
		if raw == "" {
			return apierrors.Unauthorized(c)
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return apierrors.Unauthorized(c)
		}
		c.Set(userContextKey, uint(id))
		return next(c)
	}
}

// UserID reads the tenant stored by RequireUser. It is zero on routes that
// did not pass through the middleware.
func UserID(c echo.Context) uint {
	if id, ok := c.Get(userContextKey).(uint); ok {
		return id
	}
	return 0
}
