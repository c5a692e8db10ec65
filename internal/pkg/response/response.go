// internal/pkg/response/response.go
package response

import (
	"errors"
	"net/http"

	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers in the chain are skipped
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError writes an error response whose status code is derived from the
// application error it wraps. Unknown errors become 500s without leaking details.
func FromError(c *gin.Context, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError && !errors.Is(err, xerrors.ErrReconciliationWriteFailed) {
		Error(c, status, message, xerrors.ErrInternal)
		return
	}
	Error(c, status, message, err)
}

// StatusFor maps application errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrUnauthorized), errors.Is(err, xerrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrForbidden), errors.Is(err, xerrors.ErrEntitlementExceeded):
		return http.StatusForbidden
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, xerrors.ErrNoBillingCustomer),
		errors.Is(err, xerrors.ErrAlreadyOwned),
		errors.Is(err, xerrors.ErrOwnedByOther),
		errors.Is(err, xerrors.ErrDuplicatePending),
		errors.Is(err, xerrors.ErrContestedPending),
		errors.Is(err, xerrors.ErrClaimNotPending),
		errors.Is(err, xerrors.ErrConflict),
		errors.Is(err, xerrors.ErrDuplicateEntry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}
