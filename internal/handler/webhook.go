package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scootr/internal/service"
)

// maxWebhookBody bounds provider payloads.
const maxWebhookBody = 64 << 10

// EventParser verifies and decodes a provider webhook.
type EventParser interface {
	Parse(payload []byte, signatureHeader string) (service.Event, error)
}

// WebhookHandler receives payment provider events.
type WebhookHandler struct {
	parser     EventParser
	reconciler *service.ReconcilerService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(parser EventParser, reconciler *service.ReconcilerService) *WebhookHandler {
	return &WebhookHandler{parser: parser, reconciler: reconciler}
}

// Stripe handles POST /webhooks/stripe. Anything but 2xx makes Stripe
// deliver the event again.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable request body"})
		return
	}

	evt, err := h.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.reconciler.Handle(c.Request.Context(), evt); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}
