package planets

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts planet routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/planets", func(c *gin.Context) {
		createPlanet(c, store)
	})
	g.GET("/planets", func(c *gin.Context) {
		listPlanets(c, store)
	})
	g.GET("/planets/:planetId", func(c *gin.Context) {
		getPlanet(c, store)
	})
	g.DELETE("/planets/:planetId", func(c *gin.Context) {
		deletePlanet(c, store)
	})
}

func createPlanet(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	planet, err := store.CreatePlanet(c.Request.Context(), userID, req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, planet)
}

func listPlanets(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	afterCursor := queryPtr(c, "afterCursor")
	limit := queryInt(c, "limit", 0)

	planets, cursor, err := store.ListPlanets(c.Request.Context(), userID, afterCursor, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": planets, "afterCursor": cursor})
}

func getPlanet(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	planet, err := store.GetPlanet(c.Request.Context(), userID, planetID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, planet)
}

func deletePlanet(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	if err := store.DeletePlanet(c.Request.Context(), userID, planetID); err != nil {
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
