package notify

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MonsoudZ/Cardly/internal/idgen"
)

// Handler provides HTTP endpoints for managing notification subscriptions.
type Handler struct {
	store SubscriptionStore
}

// NewHandler creates a new subscription handler.
func NewHandler(store SubscriptionStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up subscription management routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notifications/subscriptions", h.Create)
	r.GET("/notifications/subscriptions", h.List)
	r.DELETE("/notifications/subscriptions/:id", h.Delete)
}

// Create handles POST /v1/notifications/subscriptions
func (h *Handler) Create(c *gin.Context) {
	callerID := c.GetString("actorID")

	var req struct {
		URL   string   `json:"url" binding:"required"`
		Kinds []string `json:"kinds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "url is required",
		})
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": "url must be an absolute http(s) URL",
		})
		return
	}

	kinds := make([]Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, Kind(k))
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("sub_"),
		UserID:    callerID,
		URL:       req.URL,
		Secret:    newSecret(),
		Kinds:     kinds,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create subscription",
		})
		return
	}

	// The signing secret is only shown once
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
	})
}

// List handles GET /v1/notifications/subscriptions
func (h *Handler) List(c *gin.Context) {
	callerID := c.GetString("actorID")
	subs, err := h.store.GetByUser(c.Request.Context(), callerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list subscriptions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// Delete handles DELETE /v1/notifications/subscriptions/:id
func (h *Handler) Delete(c *gin.Context) {
	callerID := c.GetString("actorID")

	sub, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Subscription not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load subscription",
		})
		return
	}
	if sub.UserID != callerID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Cannot delete another user's subscription",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to delete subscription",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func newSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}
