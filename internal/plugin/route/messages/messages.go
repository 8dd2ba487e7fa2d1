package messages

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/cursor"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts message routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/planets/:planetId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
	g.POST("/planets/:planetId/messages", func(c *gin.Context) {
		appendMessage(c, store)
	})
	g.GET("/planets/:planetId/messages/:messageId", func(c *gin.Context) {
		getMessage(c, store)
	})
	g.PUT("/planets/:planetId/messages/:messageId", func(c *gin.Context) {
		editMessage(c, store)
	})
	g.DELETE("/planets/:planetId/messages/:messageId", func(c *gin.Context) {
		deleteMessage(c, store)
	})
}

func listMessages(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, ok := planetParam(c)
	if !ok {
		return
	}

	q := registrystore.MessageQuery{
		AfterCursor: queryPtr(c, "afterCursor"),
		Limit:       queryInt(c, "limit", 0),
	}
	if raw := c.Query("type"); raw != "" {
		t := model.MessageType(raw)
		if !t.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid message type"})
			return
		}
		q.Type = &t
	}
	if raw := c.Query("senderId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid senderId"})
			return
		}
		q.SenderID = &id
	}

	page, err := store.ListMessages(c.Request.Context(), userID, planetID, q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Data, "nextCursor": page.NextCursor})
}

func appendMessage(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, ok := planetParam(c)
	if !ok {
		return
	}

	var req registrystore.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := store.AppendMessage(c.Request.Context(), userID, planetID, req)
	if err != nil {
		handleError(c, err)
		return
	}

	// Fanout happens off the request path; losing the task loses a push, not
	// the message.
	if err := store.CreateTask(c.Request.Context(), "notification_fanout", map[string]interface{}{
		"planetId":  planetID.String(),
		"messageId": msg.ID,
		"senderId":  msg.SenderID,
	}); err != nil {
		log.Warn("failed to enqueue notification fanout", "planet", planetID, "message", msg.ID, "error", err)
	}

	c.JSON(http.StatusCreated, msg)
}

func getMessage(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, ok := planetParam(c)
	if !ok {
		return
	}
	messageID, ok := messageParam(c)
	if !ok {
		return
	}

	msg, err := store.GetMessage(c.Request.Context(), userID, planetID, messageID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func editMessage(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, ok := planetParam(c)
	if !ok {
		return
	}
	messageID, ok := messageParam(c)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := store.EditMessage(c.Request.Context(), userID, planetID, messageID, req.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func deleteMessage(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, ok := planetParam(c)
	if !ok {
		return
	}
	messageID, ok := messageParam(c)
	if !ok {
		return
	}

	reason := c.Query("reason")
	strict := c.Query("strict") == "true"

	if err := store.SoftDeleteMessage(c.Request.Context(), userID, planetID, messageID, reason, strict); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func planetParam(c *gin.Context) (uuid.UUID, bool) {
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return uuid.Nil, false
	}
	return planetID, true
}

func messageParam(c *gin.Context) (int64, bool) {
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return 0, false
	}
	return messageID, true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var alreadyDeleted *registrystore.AlreadyDeletedError
	var badCursor *cursor.InvalidCursorError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &badCursor):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_cursor", "error": err.Error()})
	case errors.As(err, &alreadyDeleted):
		c.JSON(http.StatusConflict, gin.H{"code": "already_deleted", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryPtr(c *gin.Context, key string) *string {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
