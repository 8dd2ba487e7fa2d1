package accounts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts identity and account lifecycle routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/accounts", func(c *gin.Context) {
		createAccount(c, store)
	})
	g.GET("/accounts/:userId", func(c *gin.Context) {
		getAccount(c, store)
	})
	g.GET("/accounts/:userId/resolve", func(c *gin.Context) {
		resolveIdentity(c, store)
	})
	// Self-service erasure. Admin-driven erasure lives under /v1/admin.
	g.DELETE("/accounts/me", func(c *gin.Context) {
		eraseSelf(c, store)
	})
}

func createAccount(c *gin.Context, store registrystore.ChatStore) {
	var req registrystore.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Role escalation is an admin operation.
	if req.Role != "" && req.Role != "user" && req.Role != "host" && !security.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "forbidden"})
		return
	}

	user, err := store.CreateUser(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func getAccount(c *gin.Context, store registrystore.ChatStore) {
	userID, ok := userParam(c)
	if !ok {
		return
	}

	user, err := store.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func resolveIdentity(c *gin.Context, store registrystore.ChatStore) {
	userID, ok := userParam(c)
	if !ok {
		return
	}

	resolved, err := store.ResolveIdentity(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "resolvedId": resolved})
}

func eraseSelf(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)

	var req struct {
		Reason        string `json:"reason,omitempty"`
		DeleteAllData bool   `json:"deleteAllData,omitempty"`
	}
	// Body is optional for self-erasure.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := store.EraseAccount(c.Request.Context(), actorID, registrystore.EraseOptions{
		ActorID:       actorID,
		Reason:        req.Reason,
		DeleteAllData: req.DeleteAllData,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func userParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return 0, false
	}
	return userID, true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var alreadyErased *registrystore.AlreadyErasedError
	var unknown *registrystore.UnknownIdentityError

	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{"code": "unknown_identity", "error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
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
