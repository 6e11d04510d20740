package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dspash/dspash-go/internal/pkg/errors"
)

// ErrorResponse is the JSON body written for any request that ends in an
// error, whether a domain error, an Echo HTTP error, or anything else.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler is a custom error handler for Echo's admin surface.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		// Check if it's a domain error
		var domainErr *errors.DomainError
		if errors.As(err, &domainErr) {
			statusCode := mapDomainErrorToHTTPStatus(domainErr)

			_ = c.JSON(statusCode, ErrorResponse{
				Error:   domainErr.Code,
				Message: domainErr.Message,
				Code:    domainErr.Code,
			})
			return
		}

		// Check if it's an Echo HTTP error
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{
				Error:   http.StatusText(he.Code),
				Message: fmt.Sprintf("%v", he.Message),
			})
			return
		}

		// Default to internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

// mapDomainErrorToHTTPStatus maps domain errors to HTTP status codes
func mapDomainErrorToHTTPStatus(err *errors.DomainError) int {
	switch err.Code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "ALREADY_EXISTS":
		return http.StatusConflict
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "INVALID_STATE":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "CONCURRENCY":
		return http.StatusConflict
	case "WORKER_UNREACHABLE", "NO_ELIGIBLE_WORKER":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
