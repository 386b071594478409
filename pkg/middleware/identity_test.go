package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestContext(headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCallerIDFallsBackToAnonymous(t *testing.T) {
	c, _ := newRequestContext(nil)
	assert.Equal(t, AnonymousCaller, CallerID(c))

	c, _ = newRequestContext(map[string]string{HeaderClientID: "   "})
	assert.Equal(t, AnonymousCaller, CallerID(c))

	c, _ = newRequestContext(map[string]string{HeaderClientID: "painel-01"})
	assert.Equal(t, "painel-01", CallerID(c))
}

func TestRequireUserStoresTenant(t *testing.T) {
	c, rec := newRequestContext(map[string]string{HeaderUserID: "42"})

	var seen uint
	handler := RequireUser(func(c echo.Context) error {
		seen = UserID(c)
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(42), seen)
}

func TestRequireUserRejectsMissingHeader(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-3"} {
		c, rec := newRequestContext(map[string]string{HeaderUserID: raw})

		called := false
		handler := RequireUser(func(c echo.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", raw)
		assert.False(t, called, "header %q", raw)
	}
}

func TestUserIDWithoutMiddleware(t *testing.T) {
	c, _ := newRequestContext(nil)
	assert.Zero(t, UserID(c))
}

func TestRateLimiterThrottlesPerCaller(t *testing.T) {
	rl := NewRateLimiter(60, 2)

	handler := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// The burst is consumed by the first two requests from one caller.
	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		c, rec := newRequestContext(map[string]string{HeaderClientID: "farmacia-a"})
		require.NoError(t, handler(c))
		assert.Equal(t, want, rec.Code, "request %d", i)
	}

	// A different caller has its own bucket.
	c, rec := newRequestContext(map[string]string{HeaderClientID: "farmacia-b"})
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
