package accounts_test

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
	"github.com/planetrip/planet-chat/internal/plugin/route/accounts"
	"github.com/planetrip/planet-chat/internal/plugin/store/postgres"
	registrymigrate "github.com/planetrip/planet-chat/internal/registry/migrate"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
	"github.com/planetrip/planet-chat/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
)

func setupAccountsRouter(t *testing.T) (*gin.Engine, registrystore.ChatStore, context.Context) {
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
	accounts.MountRoutes(router, store, auth)
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

func TestAccounts_CreateAndGet(t *testing.T) {
	router, store, ctx := setupAccountsRouter(t)
	actor, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "actor", Role: model.RoleUser})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/v1/accounts", actor.ID,
		gin.H{"name": "Mina", "role": "host"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "Mina", created.Name)
	require.Equal(t, model.RoleHost, created.Role)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", created.ID), actor.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/accounts/999999", actor.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccounts_RoleEscalationForbidden(t *testing.T) {
	router, store, ctx := setupAccountsRouter(t)
	actor, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "actor", Role: model.RoleUser})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/v1/accounts", actor.ID,
		gin.H{"name": "Wannabe", "role": "admin"})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAccounts_ResolveIdentity(t *testing.T) {
	router, store, ctx := setupAccountsRouter(t)
	actor, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "actor", Role: model.RoleUser})
	require.NoError(t, err)

	// A live account resolves to itself.
	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/accounts/%d/resolve", actor.ID), actor.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved struct {
		UserID     int64 `json:"userId"`
		ResolvedID int64 `json:"resolvedId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	require.Equal(t, actor.ID, resolved.ResolvedID)

	// Sentinels are fixed points.
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/accounts/%d/resolve", model.SentinelUserID), actor.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	require.Equal(t, model.SentinelUserID, resolved.ResolvedID)

	// An id that never existed is distinguishable from an erased one.
	w = doJSON(t, router, http.MethodGet, "/v1/accounts/999999/resolve", actor.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "unknown_identity", resp.Code)
}

func TestAccounts_EraseSelf(t *testing.T) {
	router, store, ctx := setupAccountsRouter(t)
	user, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "leaver", Role: model.RoleUser})
	require.NoError(t, err)
	planet, err := store.CreatePlanet(ctx, user.ID, "Busan Weekend")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.AppendMessage(ctx, user.ID, planet.ID, registrystore.CreateMessageRequest{
			Body: fmt.Sprintf("note %d", i),
		})
		require.NoError(t, err)
	}

	w := doJSON(t, router, http.MethodDelete, "/v1/accounts/me", user.ID,
		gin.H{"reason": "leaving the platform"})
	require.Equal(t, http.StatusOK, w.Code)

	var report registrystore.DeletionReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, user.ID, report.UserID)
	require.Equal(t, model.SentinelUserID, report.SentinelID)
	require.Equal(t, int64(3), report.Anonymized.Messages)

	// The account is gone but its identity still resolves to the sentinel.
	other, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "other", Role: model.RoleUser})
	require.NoError(t, err)
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", user.ID), other.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/accounts/%d/resolve", user.ID), other.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved struct {
		ResolvedID int64 `json:"resolvedId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	require.Equal(t, model.SentinelUserID, resolved.ResolvedID)

	// Re-running converges with nothing left to do.
	w = doJSON(t, router, http.MethodDelete, "/v1/accounts/me", user.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Zero(t, report.Total())
}
