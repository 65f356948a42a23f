package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/pkg/constants"
)

// stubService returns a canned verdict for every check.
type stubService struct {
	verdict models.Verdict
}

func (s *stubService) Check(context.Context, *http.Request, models.Operation, string) models.Verdict {
	return s.verdict
}
func (s *stubService) Status(context.Context, string, models.Operation) (models.Verdict, error) {
	return s.verdict, nil
}
func (s *stubService) StatusAll(context.Context, string) (map[models.Operation]models.Verdict, error) {
	return map[models.Operation]models.Verdict{models.OpAPIGeneral: s.verdict}, nil
}
func (s *stubService) Reset(context.Context, string) (int64, error) { return 0, nil }
func (s *stubService) Rule(op models.Operation) (models.Rule, bool) {
	return models.DefaultRules()[op], true
}

func serve(t *testing.T, verdict models.Verdict) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.GET("/polls", RateLimit(&stubService{verdict: verdict}, models.OpPollsView), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/polls", nil)
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitAllowedAttachesHeaders(t *testing.T) {
	rec := serve(t, models.Verdict{
		Allowed:   true,
		Type:      constants.LimitTypeStandard,
		Limit:     50,
		Remaining: 49,
		ResetTime: time.Now().Add(time.Minute),
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "standard", rec.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "50", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "49", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitRejectedBody(t *testing.T) {
	reset := time.Now().Add(2 * time.Minute)
	rec := serve(t, models.Verdict{
		Allowed:   false,
		Type:      constants.LimitTypeBurst,
		Limit:     50,
		Remaining: 0,
		ResetTime: reset,
		Message:   "Burst limit exceeded. Max 50 requests in 10 seconds.",
	})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error             string `json:"error"`
		RateLimitExceeded bool   `json:"rateLimitExceeded"`
		Type              string `json:"type"`
		Limit             int    `json:"limit"`
		Remaining         int    `json:"remaining"`
		ResetTime         int64  `json:"resetTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Burst limit exceeded. Max 50 requests in 10 seconds.", body.Error)
	assert.True(t, body.RateLimitExceeded)
	assert.Equal(t, "burst", body.Type)
	assert.Equal(t, 50, body.Limit)
	assert.Zero(t, body.Remaining)
	assert.Equal(t, reset.Unix(), body.ResetTime)
}

func TestRateLimitUnavailableMapsTo503(t *testing.T) {
	rec := serve(t, models.Verdict{
		Allowed:     false,
		Unavailable: true,
		Type:        constants.LimitTypeStandard,
		ResetTime:   time.Now().Add(time.Minute),
		Message:     "Rate limiting service unavailable",
	})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limiting service unavailable", body["error"])
	assert.NotContains(t, body, "rateLimitExceeded")
}
