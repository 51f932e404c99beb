package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the status code of its kind.
// Internal details are logged, not returned.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service error kinds to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// pathID validates a path parameter as an identifier with the given prefix.
// On failure it responds and returns false.
func pathID(c *gin.Context, name string, prefix id.Prefix) (string, bool) {
	raw := c.Param(name)
	if _, err := id.ParseWithPrefix(raw, prefix); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name + ": " + err.Error()})
		return "", false
	}
	return raw, true
}

func bodyID(c *gin.Context, field, raw string, prefix id.Prefix) bool {
	if _, err := id.ParseWithPrefix(raw, prefix); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + field + ": " + err.Error()})
		return false
	}
	return true
}

// LocationJSON is a lon/lat pair on the wire.
type LocationJSON struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func toLocationJSON(l domain.Location) LocationJSON {
	return LocationJSON{Longitude: l.Longitude, Latitude: l.Latitude}
}

func (l LocationJSON) toDomain() domain.Location {
	return domain.Location{Longitude: l.Longitude, Latitude: l.Latitude}
}

// errLocationRequired answers bodies that omit a location. (0,0) is a valid
// coordinate, so absence is checked on the pointer.
const errLocationRequired = "location is required"

// MoneyJSON carries an amount in minor units with its decimal rendering.
type MoneyJSON struct {
	Raw       int64  `json:"raw"`
	Formatted string `json:"formatted"`
}

func toMoneyJSON(amount int64) MoneyJSON {
	return MoneyJSON{Raw: amount, Formatted: domain.FormatMinorAmount(amount)}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
