package webhookin

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/payments"
)

// maxPayloadBytes bounds inbound webhook bodies.
const maxPayloadBytes = 1 << 20

// Handler exposes the provider webhook endpoint.
type Handler struct {
	processor *Processor
}

// NewHandler creates a new webhook handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// RegisterRoutes sets up the webhook endpoint. No auth middleware: the
// signature header is the authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.Receive)
}

// Receive handles POST /webhooks/stripe.
//
// 200 on success including idempotent replays, 400 on signature or parse
// failure, 500 on a dispatch error (already recorded in the ledger, so the
// provider's redelivery will short-circuit).
func (h *Handler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Could not read request body",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.processor.Process(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, payments.ErrSignature) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_signature",
				"message": "Webhook signature verification failed",
			})
			return
		}
		// Dispatch errors are never exposed to the provider
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Event processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
