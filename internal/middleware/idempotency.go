package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"scootr/internal/redis"
)

const idempotencyHeader = "Idempotency-Key"

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a mutating request sent again
// with the same Idempotency-Key. Keys are scoped to the authenticated caller,
// so it must run after RequireUser or RequireVehicle. Without a store, or
// when Redis fails, requests pass through.
func Idempotency(store redis.ResponseStoreInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to mutating methods.
		if store == nil || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch) {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := callerScope(c) + ":" + key

		data, pending, err := store.Lookup(ctx, scoped)
		if err != nil {
			slog.WarnContext(ctx, "idempotency lookup failed", "error", err)
			c.Next()
			return
		}
		if pending {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is in progress"})
			return
		}
		if data != nil {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				for k, v := range cached.Headers {
					for _, val := range v {
						c.Header(k, val)
					}
				}
				c.Header("Idempotent-Replayed", "true")
				c.Data(cached.StatusCode, "application/json", cached.Body)
				c.Abort()
				return
			}
		}

		reserved, err := store.Reserve(ctx, scoped)
		if err != nil {
			slog.WarnContext(ctx, "idempotency reservation failed", "error", err)
			c.Next()
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is in progress"})
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are not replayed; the client may retry them.
		status := c.Writer.Status()
		if status >= 500 {
			_ = store.Release(ctx, scoped)
			return
		}

		var body json.RawMessage
		if w.body.Len() > 0 {
			body = w.body.Bytes()
		}
		encoded, err := json.Marshal(cachedResponse{
			StatusCode: status,
			Body:       body,
			Headers:    extractResponseHeaders(c),
		})
		if err == nil {
			err = store.Save(ctx, scoped, encoded)
		}
		if err != nil {
			slog.WarnContext(ctx, "store idempotent response", "error", err)
			_ = store.Release(ctx, scoped)
		}
	}
}

func callerScope(c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return uid
	}
	if vid := VehicleID(c); vid != "" {
		return vid
	}
	return "anonymous"
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
