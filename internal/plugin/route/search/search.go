package search

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// MountRoutes mounts search routes.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/search/messages", func(c *gin.Context) {
		searchMessages(c, store)
	})
	g.GET("/planets/:planetId/search", func(c *gin.Context) {
		searchPlanet(c, store)
	})
}

func searchMessages(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	q := registrystore.SearchQuery{
		Query: c.Query("q"),
		Limit: queryInt(c, "limit", 0),
	}

	results, err := store.SearchMessages(c.Request.Context(), userID, q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}

func searchPlanet(c *gin.Context, store registrystore.ChatStore) {
	userID := security.GetUserID(c)
	planetID, err := uuid.Parse(c.Param("planetId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "planet not found"})
		return
	}

	q := registrystore.SearchQuery{
		PlanetID: &planetID,
		Query:    c.Query("q"),
		Limit:    queryInt(c, "limit", 0),
	}

	results, err := store.SearchMessages(c.Request.Context(), userID, q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
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
