package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/planetrip/planet-chat/internal/config"
	"github.com/planetrip/planet-chat/internal/model"
	"github.com/planetrip/planet-chat/internal/plugin/route/messages"
	"github.com/planetrip/planet-chat/internal/plugin/store/postgres"
	registrymigrate "github.com/planetrip/planet-chat/internal/registry/migrate"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
	"github.com/planetrip/planet-chat/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
)

func setupMessagesRouter(t *testing.T) (*gin.Engine, registrystore.ChatStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	_ = postgres.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))
	messages.MountRoutes(router, store, auth)
	return router, store, ctx
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %d", userID))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedPlanet(t *testing.T, store registrystore.ChatStore, ctx context.Context) (owner, member *model.User, planet *model.Planet) {
	t.Helper()
	owner, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "owner", Role: model.RoleUser})
	require.NoError(t, err)
	member, err = store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "member", Role: model.RoleUser})
	require.NoError(t, err)
	planet, err = store.CreatePlanet(ctx, owner.ID, "Jeju Trip")
	require.NoError(t, err)
	_, err = store.JoinPlanet(ctx, member.ID, planet.ID, member.ID, model.MembershipActive)
	require.NoError(t, err)
	return owner, member, planet
}

func TestMessages_AppendAndList(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, member, planet := seedPlanet(t, store, ctx)

	w := doJSON(t, router, http.MethodPost, "/v1/planets/"+planet.ID.String()+"/messages", owner.ID,
		gin.H{"body": "who is up for hiking hallasan?"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, owner.ID, created.SenderID)
	require.Equal(t, model.MessageText, created.Type)
	require.NotZero(t, created.ID)

	w = doJSON(t, router, http.MethodGet, "/v1/planets/"+planet.ID.String()+"/messages", member.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Data       []model.Message `json:"data"`
		NextCursor *string         `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	require.Equal(t, created.ID, page.Data[0].ID)
	require.Nil(t, page.NextCursor)
}

func TestMessages_CursorPaginationOverHTTP(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, _, planet := seedPlanet(t, store, ctx)

	for i := 1; i <= 5; i++ {
		w := doJSON(t, router, http.MethodPost, "/v1/planets/"+planet.ID.String()+"/messages", owner.ID,
			gin.H{"body": fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	base := "/v1/planets/" + planet.ID.String() + "/messages?limit=2"
	var seen []int64
	cursor := ""
	for {
		path := base
		if cursor != "" {
			path += "&afterCursor=" + cursor
		}
		w := doJSON(t, router, http.MethodGet, path, owner.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var page struct {
			Data       []model.Message `json:"data"`
			NextCursor *string         `json:"nextCursor"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		for _, m := range page.Data {
			seen = append(seen, m.ID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	// Newest first, no duplicates, no gaps.
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i-1], seen[i])
	}
}

func TestMessages_InvalidCursor(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, _, planet := seedPlanet(t, store, ctx)

	w := doJSON(t, router, http.MethodGet,
		"/v1/planets/"+planet.ID.String()+"/messages?afterCursor=not-a-cursor", owner.ID, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "invalid_cursor", resp.Code)
}

func TestMessages_SoftDeleteStrictConflict(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, member, planet := seedPlanet(t, store, ctx)

	w := doJSON(t, router, http.MethodPost, "/v1/planets/"+planet.ID.String()+"/messages", member.ID,
		gin.H{"body": "delete me"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := fmt.Sprintf("/v1/planets/%s/messages/%d", planet.ID, created.ID)

	w = doJSON(t, router, http.MethodDelete, path+"?reason=spam", member.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Tombstone survives the delete and is readable.
	w = doJSON(t, router, http.MethodGet, path, owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tomb model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tomb))
	require.NotNil(t, tomb.DeletedAt)
	require.Empty(t, tomb.Body)

	// Non-strict re-delete converges.
	w = doJSON(t, router, http.MethodDelete, path, member.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Strict re-delete reports the conflict.
	w = doJSON(t, router, http.MethodDelete, path+"?strict=true", member.ID, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "already_deleted", resp.Code)
}

func TestMessages_EditRules(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, member, planet := seedPlanet(t, store, ctx)

	w := doJSON(t, router, http.MethodPost, "/v1/planets/"+planet.ID.String()+"/messages", owner.ID,
		gin.H{"body": "original"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := fmt.Sprintf("/v1/planets/%s/messages/%d", planet.ID, created.ID)

	w = doJSON(t, router, http.MethodPut, path, member.ID, gin.H{"body": "hijacked"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPut, path, owner.ID, gin.H{"body": "edited"})
	require.Equal(t, http.StatusOK, w.Code)
	var edited model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edited))
	require.True(t, edited.Edited)
	require.Equal(t, "edited", edited.Body)
}

func TestMessages_AccessControl(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	_, _, planet := seedPlanet(t, store, ctx)

	outsider, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "outsider", Role: model.RoleUser})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/v1/planets/"+planet.ID.String()+"/messages", outsider.ID, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/planets/"+planet.ID.String()+"/messages", outsider.ID,
		gin.H{"body": "let me in"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// No token at all.
	req := httptest.NewRequest(http.MethodGet, "/v1/planets/"+planet.ID.String()+"/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessages_BadPlanetAndMessageIDs(t *testing.T) {
	router, store, ctx := setupMessagesRouter(t)
	owner, _, planet := seedPlanet(t, store, ctx)

	w := doJSON(t, router, http.MethodGet, "/v1/planets/not-a-uuid/messages", owner.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/planets/"+planet.ID.String()+"/messages/abc", owner.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/planets/"+planet.ID.String()+"/messages/999999", owner.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
