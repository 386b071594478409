// Package errors writes the JSON error bodies of the HTTP API. Client
// mistakes get a descriptive message; server-side failures get a generic one
// and the detail goes to the log only.
package errors

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BadRequest rejects a malformed request with a message the caller can act on.
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

// Validation rejects a request whose body failed binding or validation.
func Validation(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: "Dados da requisição inválidos. Verifique os campos e tente novamente.",
	})
}

// TooManyRequests rejects a caller over quota. A positive retryAfter is
// exposed through the Retry-After header, rounded up to whole seconds.
func TooManyRequests(c echo.Context, retryAfter time.Duration) error {
	if retryAfter > 0 {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	return c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:   "rate_limit_exceeded",
		Message: "Limite de consultas atingido. Tente novamente em alguns instantes.",
	})
}

// NotFound reports a missing resource.
func NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "O recurso solicitado não foi encontrado.",
	})
}

// Unauthorized rejects a request with no usable caller identity.
func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "Identificação do usuário ausente ou inválida.",
	})
}

// Unavailable reports a feature that is not wired in this deployment.
func Unavailable(c echo.Context, message string) error {
	return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "service_unavailable",
		Message: message,
	})
}

// Internal reports a server-side failure. The cause is logged and never
// reaches the response body.
func Internal(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Ocorreu um erro interno. Tente novamente mais tarde.",
	})
}

// Upstream reports a failed price service call. Like Internal it hides the
// cause from the caller; the distinct code lets clients tell the cases apart.
func Upstream(c echo.Context, err error) error {
	log.Printf("[UPSTREAM ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "upstream_error",
		Message: "O serviço de preços está indisponível no momento. Tente novamente mais tarde.",
	})
}
