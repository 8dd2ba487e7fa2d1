package receipts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts read receipt routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/planets/:planetId/unread", func(c *gin.Context) {
		unreadCount(c, store)
	})
	g.PUT("/planets/:planetId/read", func(c *gin.Context) {
		markRead(c, store)
	})
}

func unreadCount(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	count, err := store.UnreadCount(c.Request.Context(), planetID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"planetId": planetID, "unread": count})
}

func markRead(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	var req struct {
		MessageID int64 `json:"messageId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := store.MarkRead(c.Request.Context(), planetID, userID, req.MessageID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
