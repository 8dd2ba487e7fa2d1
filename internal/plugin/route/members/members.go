package members

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts planet membership and travel routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/planets/:planetId/members", func(c *gin.Context) {
		joinPlanet(c, store)
	})
	g.GET("/planets/:planetId/members", func(c *gin.Context) {
		listMembers(c, store)
	})
	g.PUT("/planets/:planetId/members/:userId", func(c *gin.Context) {
		updateMember(c, store)
	})
	g.DELETE("/planets/:planetId/members/:userId", func(c *gin.Context) {
		leavePlanet(c, store)
	})

	g.POST("/travels", func(c *gin.Context) {
		createTravel(c, store)
	})
	g.POST("/travels/:travelId/members", func(c *gin.Context) {
		joinTravel(c, store)
	})
}

func joinPlanet(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	var req struct {
		UserID *int64                 `json:"userId,omitempty"`
		Status model.MembershipStatus `json:"status,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := actorID
	if req.UserID != nil {
		userID = *req.UserID
	}

	membership, err := store.JoinPlanet(c.Request.Context(), actorID, planetID, userID, req.Status)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func listMembers(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	afterCursor := queryPtr(c, "afterCursor")
	limit := queryInt(c, "limit", 0)

	rows, cursor, err := store.ListPlanetMembers(c.Request.Context(), actorID, planetID, afterCursor, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "afterCursor": cursor})
}

func updateMember(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "member not found"})
		return
	}

	var req struct {
		Status model.MembershipStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	membership, err := store.UpdateMemberStatus(c.Request.Context(), actorID, planetID, userID, req.Status)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func leavePlanet(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "member not found"})
		return
	}

	if err := store.LeavePlanet(c.Request.Context(), actorID, planetID, userID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func createTravel(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)

	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	travel, err := store.CreateTravel(c.Request.Context(), actorID, req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, travel)
}

func joinTravel(c *gin.Context, store registrystore.ChatStore) {
	actorID := security.GetUserID(c)
	travelID, err := uuid.Parse(c.Param("travelId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "travel not found"})
		return
	}

	var req struct {
		UserID *int64 `json:"userId,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := actorID
	if req.UserID != nil {
		userID = *req.UserID
	}

	member, err := store.JoinTravel(c.Request.Context(), actorID, travelID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
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
