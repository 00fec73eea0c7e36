package ratings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

// Handler provides HTTP endpoints for ratings.
type Handler struct {
	service *Service
}

// NewHandler creates a new rating handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up rating routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ratings", h.Create)
	r.GET("/ratings/:id", h.Get)
	r.GET("/offers/:id/ratings", h.ListByTransaction)
	r.GET("/users/:id/ratings", h.ListForUser)
	r.GET("/users/:id/ratings/summary", h.Summary)
}

// Create handles POST /v1/ratings
func (h *Handler) Create(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transactionId and score are required",
		})
		return
	}

	rating, err := h.service.Create(c.Request.Context(), callerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rating": rating})
}

// Get handles GET /v1/ratings/:id
func (h *Handler) Get(c *gin.Context) {
	rating, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": rating})
}

// ListByTransaction handles GET /v1/offers/:id/ratings
func (h *Handler) ListByTransaction(c *gin.Context) {
	ratings, err := h.service.ListByTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ratings": ratings,
		"count":   len(ratings),
	})
}

// ListForUser handles GET /v1/users/:id/ratings
func (h *Handler) ListForUser(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	ratings, err := h.service.ListForUser(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ratings": ratings,
		"count":   len(ratings),
	})
}

// Summary handles GET /v1/users/:id/ratings/summary
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.SummaryForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// respondError maps service errors onto the JSON error envelope.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrRatingNotFound),
		errors.Is(err, marketplace.ErrTransactionNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrBadScore), errors.Is(err, ErrCommentTooLong):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, ErrAlreadyRated):
		status = http.StatusConflict
		code = "already_rated"
	case errors.Is(err, ErrNotCompleted):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
