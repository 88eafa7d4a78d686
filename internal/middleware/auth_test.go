package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cotex-app/cotex/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret"

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	authed := router.Group("", AuthMiddleware(testSecret))
	authed.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  GetUserID(c),
			"email":    GetEmail(c),
			"verified": GetVerified(c),
		})
	})

	verified := authed.Group("", RequireVerified())
	verified.POST("/mutate", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return router
}

func get(router *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	router := protectedRouter()
	token, err := auth.GenerateToken(uuid.New(), "alice@example.com", true, testSecret, time.Hour)
	require.NoError(t, err)

	rec := get(router, "/whoami", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
}

func TestAuthMiddlewareRejections(t *testing.T) {
	router := protectedRouter()
	expired, err := auth.GenerateToken(uuid.New(), "a@b.c", true, testSecret, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := auth.GenerateToken(uuid.New(), "a@b.c", true, "other-secret", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc123",
		"no scheme":      "justatoken",
		"garbage token":  "Bearer not.a.token",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + wrongKey,
	} {
		rec := get(router, "/whoami", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestRequireVerifiedGate(t *testing.T) {
	router := protectedRouter()

	unverified, err := auth.GenerateToken(uuid.New(), "new@example.com", false, testSecret, time.Hour)
	require.NoError(t, err)
	verified, err := auth.GenerateToken(uuid.New(), "old@example.com", true, testSecret, time.Hour)
	require.NoError(t, err)

	post := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// Unverified accounts can read but not mutate.
	assert.Equal(t, http.StatusOK, get(router, "/whoami", "Bearer "+unverified).Code)
	assert.Equal(t, http.StatusForbidden, post("Bearer "+unverified))
	assert.Equal(t, http.StatusNoContent, post("Bearer "+verified))
}
