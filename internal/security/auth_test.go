package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/planetrip/planet-chat/internal/config"
	"github.com/stretchr/testify/require"
)

func TestResolve_DirectNumericToken(t *testing.T) {
	cfg := config.DefaultConfig()
	resolver := NewTokenResolver(&cfg)

	id, err := resolver.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id.UserID)
	require.False(t, id.IsAdmin)
}

func TestResolve_NonNumericTokenRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	resolver := NewTokenResolver(&cfg)

	_, err := resolver.Resolve(context.Background(), "not-a-user-id")
	require.ErrorIs(t, err, errBadUserID)
}

func TestResolve_DirectTokenGatedByModeWithOIDC(t *testing.T) {
	// A live verifier without testing mode must not accept a bare user id;
	// that would bypass token verification entirely.
	keySet := oidc.NewRemoteKeySet(context.Background(), "https://idp.example.com/jwks")
	resolver := &TokenResolver{
		verifier: oidc.NewVerifier("https://idp.example.com", keySet, &oidc.Config{SkipClientIDCheck: true}),
	}

	_, err := resolver.Resolve(context.Background(), "42")
	require.ErrorIs(t, err, errInvalidJWT)

	resolver.testingMode = true
	id, err := resolver.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id.UserID)
}

func TestResolve_UserListRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AdminUsers = "1, 2"
	cfg.AuditorUsers = "3"
	resolver := NewTokenResolver(&cfg)

	admin, err := resolver.Resolve(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, admin.IsAdmin)
	// Admin implies auditor.
	require.True(t, admin.Roles[RoleAuditor])

	auditor, err := resolver.Resolve(context.Background(), "3")
	require.NoError(t, err)
	require.False(t, auditor.IsAdmin)
	require.True(t, auditor.Roles[RoleAuditor])

	nobody, err := resolver.Resolve(context.Background(), "9")
	require.NoError(t, err)
	require.Empty(t, nobody.Roles)
}

func TestAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	cfg := config.DefaultConfig()
	resolver := NewTokenResolver(&cfg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/planets", AuthMiddleware(resolver), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/planets", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/planets", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/planets", nil)
	req.Header.Set("Authorization", "Bearer 7")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"userId":7}`, w.Body.String())
}

func TestRequireAdminRole_GatesByResolvedRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AdminUsers = "1"
	cfg.AuditorUsers = "2"
	resolver := NewTokenResolver(&cfg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := AuthMiddleware(resolver)
	router.POST("/v1/admin/action", auth, RequireAdminRole(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/v1/admin/view", auth, RequireAuditorRole(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusNoContent, do(http.MethodPost, "/v1/admin/action", "1"))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/v1/admin/action", "2"))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/v1/admin/action", "3"))

	// Auditors and admins may read; plain users may not.
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/v1/admin/view", "1"))
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/v1/admin/view", "2"))
	require.Equal(t, http.StatusForbidden, do(http.MethodGet, "/v1/admin/view", "3"))
}

func TestExtractTokenRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "viewer"},
		"scope": "openid profile auditor",
		"realm_access": map[string]any{
			"roles": []any{"realm-admin"},
		},
	}
	roles := extractTokenRoles(claims)
	require.True(t, roles["admin"])
	require.True(t, roles["viewer"])
	require.True(t, roles["auditor"])
	require.True(t, roles["realm-admin"])
}

func TestSplitCSV(t *testing.T) {
	require.Empty(t, splitCSV(""))
	require.Equal(t, map[string]bool{"1": true, "2": true}, splitCSV(" 1 ,2,, "))
}
