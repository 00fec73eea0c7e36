package marketplace

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/validation"
)

// Handler provides HTTP endpoints for listings and offers.
type Handler struct {
	service *Service
}

// NewHandler creates a new marketplace handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up marketplace routes. Caller identity comes from the
// X-Actor-ID header set by the upstream auth layer.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/listings", h.CreateListing)
	r.GET("/listings/:id", h.GetListing)
	r.DELETE("/listings/:id", h.CancelListing)

	r.POST("/offers", h.CreateOffer)
	r.GET("/offers/:id", h.GetOffer)
	r.GET("/users/:id/offers", h.ListOffers)
	r.POST("/offers/:id/counter", h.Counter)
	r.POST("/offers/:id/accept", h.Accept)
	r.POST("/offers/:id/accept-counter", h.AcceptCounter)
	r.POST("/offers/:id/reject", h.Reject)
	r.POST("/offers/:id/reject-counter", h.RejectCounter)
	r.POST("/offers/:id/cancel", h.Cancel)
}

// CreateListing handles POST /v1/listings
func (h *Handler) CreateListing(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("giftCardId", req.GiftCardID),
		validation.OneOf("type", req.Type, "sale", "trade"),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), callerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"listing": listing})
}

// GetListing handles GET /v1/listings/:id
func (h *Handler) GetListing(c *gin.Context) {
	listing, err := h.service.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// CancelListing handles DELETE /v1/listings/:id
func (h *Handler) CancelListing(c *gin.Context) {
	callerID := c.GetString("actorID")
	listing, err := h.service.CancelListing(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// CreateOffer handles POST /v1/offers
func (h *Handler) CreateOffer(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("listingId", req.ListingID),
		validation.MaxLength("message", req.Message, 1000),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	tx, err := h.service.CreateOffer(c.Request.Context(), callerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// GetOffer handles GET /v1/offers/:id
func (h *Handler) GetOffer(c *gin.Context) {
	callerID := c.GetString("actorID")

	tx, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tx.BuyerID != callerID && tx.SellerID != callerID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Not a participant in this transaction",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ListOffers handles GET /v1/users/:id/offers
func (h *Handler) ListOffers(c *gin.Context) {
	userID := c.Param("id")
	callerID := c.GetString("actorID")
	if userID != callerID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Cannot list another user's offers",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	txs, err := h.service.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Counter handles POST /v1/offers/:id/counter
func (h *Handler) Counter(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req CounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Counter amount is required",
		})
		return
	}
	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
		validation.MaxLength("message", req.Message, 1000),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	tx, err := h.service.Counter(c.Request.Context(), c.Param("id"), callerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Accept handles POST /v1/offers/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, h.service.Accept)
}

// AcceptCounter handles POST /v1/offers/:id/accept-counter
func (h *Handler) AcceptCounter(c *gin.Context) {
	h.transition(c, h.service.AcceptCounter)
}

// Reject handles POST /v1/offers/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.transition(c, h.service.Reject)
}

// RejectCounter handles POST /v1/offers/:id/reject-counter
func (h *Handler) RejectCounter(c *gin.Context) {
	h.transition(c, h.service.RejectCounter)
}

// Cancel handles POST /v1/offers/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id, callerID string) (*Transaction, error)) {
	callerID := c.GetString("actorID")
	tx, err := fn(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// respondError maps service errors onto the JSON error envelope.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrListingNotFound),
		errors.Is(err, ErrCardNotFound),
		errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrSelfDeal):
		status = http.StatusBadRequest
		code = "self_deal"
	case errors.Is(err, ErrCounterUnchanged):
		status = http.StatusBadRequest
		code = "counter_unchanged"
	case errors.Is(err, ErrListingTaken):
		status = http.StatusConflict
		code = "listing_taken"
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrVersionConflict):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
