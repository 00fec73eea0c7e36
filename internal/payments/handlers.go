package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

// Handler provides HTTP endpoints for the settlement leg.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler creates a new payments handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes sets up payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/offers/:id/checkout", h.InitiateCheckout)
	r.POST("/offers/:id/checkout/cancel", h.CancelPending)
	r.GET("/checkout/success", h.CheckoutSuccess)
	r.POST("/connect/onboard", h.ConnectOnboard)
}

// InitiateCheckout handles POST /v1/offers/:id/checkout
func (h *Handler) InitiateCheckout(c *gin.Context) {
	callerID := c.GetString("actorID")

	info, tx, err := h.coordinator.InitiateCheckout(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checkout":    info,
		"transaction": tx,
	})
}

// CancelPending handles POST /v1/offers/:id/checkout/cancel
func (h *Handler) CancelPending(c *gin.Context) {
	callerID := c.GetString("actorID")

	tx, err := h.coordinator.CancelPending(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// CheckoutSuccess handles GET /v1/checkout/success?session_id=...
// The redirect target after a hosted checkout; confirms only when the
// provider reports the session as paid.
func (h *Handler) CheckoutSuccess(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "session_id is required",
		})
		return
	}

	tx, err := h.coordinator.VerifyCheckoutSuccess(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ConnectOnboard handles POST /v1/connect/onboard
func (h *Handler) ConnectOnboard(c *gin.Context) {
	callerID := c.GetString("actorID")

	accountID, err := h.coordinator.ConnectOnboard(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountID})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := err.Error()
	switch {
	case IsProviderError(err):
		// Provider details stay server-side; callers get a retry-safe message
		status = http.StatusBadGateway
		code = "provider_error"
		message = "Payment provider is unavailable, try again shortly"
	case errors.Is(err, marketplace.ErrTransactionNotFound),
		errors.Is(err, marketplace.ErrUserNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, marketplace.ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, marketplace.ErrInvalidStatus),
		errors.Is(err, marketplace.ErrVersionConflict):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}
