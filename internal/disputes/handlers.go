package disputes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

// Handler provides HTTP endpoints for dispute filing and administration.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the participant-facing dispute routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.Open)
	r.GET("/disputes/:id", h.Get)
	r.GET("/offers/:id/disputes", h.ListByTransaction)
	r.POST("/disputes/:id/messages", h.PostMessage)
	r.GET("/disputes/:id/messages", h.ListMessages)
	r.GET("/disputes/:id/messages/unread", h.UnreadCount)
}

// RegisterAdminRoutes sets up staff-only dispute administration. The group
// must be guarded by the admin middleware upstream.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/disputes/:id/review", h.MarkUnderReview)
	r.POST("/disputes/:id/resolve", h.Resolve)
	r.POST("/disputes/:id/close", h.Close)
	r.POST("/disputes/:id/reopen", h.Reopen)
	r.POST("/disputes/:id/messages", h.PostStaffMessage)
}

// Open handles POST /v1/disputes
func (h *Handler) Open(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transactionId, reason, and description are required",
		})
		return
	}

	d, err := h.service.Open(c.Request.Context(), callerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// Get handles GET /v1/disputes/:id
func (h *Handler) Get(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ListByTransaction handles GET /v1/offers/:id/disputes
func (h *Handler) ListByTransaction(c *gin.Context) {
	disputes, err := h.service.ListByTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

// MarkUnderReview handles POST /v1/admin/disputes/:id/review
func (h *Handler) MarkUnderReview(c *gin.Context) {
	staffID := c.GetString("actorID")
	d, err := h.service.MarkUnderReview(c.Request.Context(), c.Param("id"), staffID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// Resolve handles POST /v1/admin/disputes/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	staffID := c.GetString("actorID")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "resolution is required",
		})
		return
	}

	d, err := h.service.Resolve(c.Request.Context(), c.Param("id"), staffID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// Close handles POST /v1/admin/disputes/:id/close
func (h *Handler) Close(c *gin.Context) {
	staffID := c.GetString("actorID")

	var req struct {
		AdminNotes string `json:"adminNotes"`
	}
	_ = c.ShouldBindJSON(&req) // body optional

	d, err := h.service.Close(c.Request.Context(), c.Param("id"), staffID, req.AdminNotes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// Reopen handles POST /v1/admin/disputes/:id/reopen
func (h *Handler) Reopen(c *gin.Context) {
	staffID := c.GetString("actorID")
	d, err := h.service.Reopen(c.Request.Context(), c.Param("id"), staffID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// PostMessage handles POST /v1/disputes/:id/messages
func (h *Handler) PostMessage(c *gin.Context) {
	h.postMessage(c, false)
}

// PostStaffMessage handles POST /v1/admin/disputes/:id/messages
func (h *Handler) PostStaffMessage(c *gin.Context) {
	h.postMessage(c, true)
}

func (h *Handler) postMessage(c *gin.Context, fromStaff bool) {
	callerID := c.GetString("actorID")

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "content is required",
		})
		return
	}

	msg, err := h.service.AddMessage(c.Request.Context(), c.Param("id"), callerID, fromStaff, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListMessages handles GET /v1/disputes/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	callerID := c.GetString("actorID")
	msgs, err := h.service.Messages(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// UnreadCount handles GET /v1/disputes/:id/messages/unread
func (h *Handler) UnreadCount(c *gin.Context) {
	callerID := c.GetString("actorID")
	count, err := h.service.UnreadCount(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// respondError maps service errors onto the JSON error envelope.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrDisputeNotFound),
		errors.Is(err, marketplace.ErrTransactionNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrBadResolution),
		errors.Is(err, ErrBadDescription):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, ErrAlreadyDisputed):
		status = http.StatusConflict
		code = "already_disputed"
	case errors.Is(err, ErrDisputeNotOpenable), errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
