package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/cursor"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts the admin API. Read endpoints accept auditors; writes
// require the admin role.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	read := r.Group("/v1/admin", auth, security.RequireAuditorRole())
	write := r.Group("/v1/admin", auth, security.RequireAdminRole())

	read.GET("/planets", func(c *gin.Context) {
		listPlanets(c, store)
	})
	read.GET("/planets/:planetId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})

	write.POST("/planets/:planetId/restore", func(c *gin.Context) {
		restorePlanet(c, store)
	})
	write.DELETE("/accounts/:userId", func(c *gin.Context) {
		eraseAccount(c, store)
	})
	write.POST("/accounts/:userId/ban", func(c *gin.Context) {
		banAccount(c, store)
	})
	write.DELETE("/accounts/:userId/ban", func(c *gin.Context) {
		unbanAccount(c, store)
	})
}

func listPlanets(c *gin.Context, store registrystore.ChatStore) {
	q := registrystore.AdminPlanetQuery{
		IncludeDeleted: c.Query("includeDeleted") == "true",
		OnlyDeleted:    c.Query("onlyDeleted") == "true",
		AfterCursor:    queryPtr(c, "afterCursor"),
		Limit:          queryInt(c, "limit", 0),
	}
	if raw := c.Query("ownerId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid ownerId"})
			return
		}
		q.OwnerID = &id
	}

	planets, cursor, err := store.AdminListPlanets(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": planets, "afterCursor": cursor})
}

func listMessages(c *gin.Context, store registrystore.ChatStore) {
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	q := registrystore.MessageQuery{
		AfterCursor:    queryPtr(c, "afterCursor"),
		Limit:          queryInt(c, "limit", 0),
		IncludeDeleted: c.DefaultQuery("includeDeleted", "true") == "true",
	}
	if raw := c.Query("senderId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid senderId"})
			return
		}
		q.SenderID = &id
	}

	page, err := store.AdminListMessages(c.Request.Context(), planetID, q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Data, "nextCursor": page.NextCursor})
}

func restorePlanet(c *gin.Context, store registrystore.ChatStore) {
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	if err := store.AdminRestorePlanet(c.Request.Context(), planetID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func eraseAccount(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	var req struct {
		Reason        string `json:"reason,omitempty"`
		DeleteAllData bool   `json:"deleteAllData,omitempty"`
		Strict        bool   `json:"strict,omitempty"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := store.EraseAccount(c.Request.Context(), userID, registrystore.EraseOptions{
		ActorID:       actorID,
		Reason:        req.Reason,
		DeleteAllData: req.DeleteAllData,
		Strict:        req.Strict,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func banAccount(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := store.BanUser(c.Request.Context(), actorID, userID, req.Reason); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func unbanAccount(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	if err := store.UnbanUser(c.Request.Context(), actorID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var alreadyErased *registrystore.AlreadyErasedError
	var unknown *registrystore.UnknownIdentityError
	var badCursor *cursor.InvalidCursorError

	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{"code": "unknown_identity", "error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &badCursor):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_cursor", "error": err.Error()})
	case errors.As(err, &alreadyErased):
		c.JSON(http.StatusConflict, gin.H{"code": "already_erased", "error": err.Error()})
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
