package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops-user",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func adminServe(secret, authHeader string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin", AdminAuth(secret, logger.NewNoopLogger()), func(c *gin.Context) {
		subject, _ := c.Request.Context().Value(constants.ContextKeyAdminSubject).(string)
		c.JSON(http.StatusOK, gin.H{"subject": subject})
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuthAcceptsAdminToken(t *testing.T) {
	rec := adminServe(testSecret, "Bearer "+signToken(t, testSecret, "admin"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ops-user")
}

func TestAdminAuthRejectsMissingToken(t *testing.T) {
	rec := adminServe(testSecret, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthRejectsBadSignature(t *testing.T) {
	rec := adminServe(testSecret, "Bearer "+signToken(t, "other-secret", "admin"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthRejectsNonAdminRole(t *testing.T) {
	rec := adminServe(testSecret, "Bearer "+signToken(t, testSecret, "viewer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAuthDisabledWithoutSecret(t *testing.T) {
	rec := adminServe("", "Bearer "+signToken(t, testSecret, "admin"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAuthRejectsExpiredToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops-user",
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := adminServe(testSecret, "Bearer "+signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
