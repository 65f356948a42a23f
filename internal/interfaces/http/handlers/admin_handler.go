package handlers

import (
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// Stats query defaults.
const (
	defaultStatsSince = 24 * time.Hour
	defaultStatsTopN  = 10
)

// AdminHandler serves the admin introspection endpoints: counter status,
// reset and violation stats.
type AdminHandler struct {
	svc      service.RateLimitService
	resolver service.IdentityResolver
	audit    service.AuditService
	log      logger.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(svc service.RateLimitService, resolver service.IdentityResolver, audit service.AuditService, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		svc:      svc,
		resolver: resolver,
		audit:    audit,
		log:      log.WithComponent("admin_handler"),
	}
}

// operationStatus is the wire shape of one rule's counters.
type operationStatus struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"resetTime"`
}

// Status handles GET /api/v1/admin/rate-limit/status?ip=. Without an ip
// parameter it reports the requesting client. Counters are peeked, never
// incremented.
func (h *AdminHandler) Status(c *gin.Context) {
	ip := c.Query("ip")
	if ip == "" {
		ip = h.resolver.ClientIP(c.Request)
	}
	if net.ParseIP(ip) == nil {
		writeError(c, errors.ErrInvalidRequest("invalid ip address"))
		return
	}

	verdicts, err := h.svc.StatusAll(c.Request.Context(), ip)
	if err != nil {
		h.fail(c, "failed to read rate limit status", err)
		return
	}

	operations := make(map[string]operationStatus, len(verdicts))
	var worst *models.Verdict
	for op, verdict := range verdicts {
		operations[string(op)] = operationStatus{
			Allowed:   verdict.Allowed,
			Limit:     verdict.Limit,
			Remaining: verdict.Remaining,
			ResetTime: verdict.ResetTime.Unix(),
		}
		v := verdict
		if worst == nil || v.Remaining < worst.Remaining {
			worst = &v
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ip": ip,
		"status": operationStatus{
			Allowed:   worst.Allowed,
			Limit:     worst.Limit,
			Remaining: worst.Remaining,
			ResetTime: worst.ResetTime.Unix(),
		},
		"operations": operations,
	})
}

// resetRequest is the body of a reset call.
type resetRequest struct {
	IP string `json:"ip" binding:"required"`
}

// Reset handles POST /api/v1/admin/rate-limit/reset. It clears every
// counter recorded for the IP, burst included.
func (h *AdminHandler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrInvalidRequest("ip is required"))
		return
	}
	if net.ParseIP(req.IP) == nil {
		writeError(c, errors.ErrInvalidRequest("invalid ip address"))
		return
	}

	removed, err := h.svc.Reset(c.Request.Context(), req.IP)
	if err != nil {
		h.fail(c, "failed to reset rate limits", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "rate limits reset",
		"ip":      req.IP,
		"cleared": removed,
	})
}

// Stats handles GET /api/v1/admin/rate-limit/stats. Optional query
// parameters: hours (lookback window) and top (group size).
func (h *AdminHandler) Stats(c *gin.Context) {
	since := time.Now().Add(-defaultStatsSince)
	if hours, err := strconv.Atoi(c.Query("hours")); err == nil && hours > 0 {
		since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}
	topN := defaultStatsTopN
	if top, err := strconv.Atoi(c.Query("top")); err == nil && top > 0 {
		topN = top
	}

	stats, err := h.audit.Stats(c.Request.Context(), since, topN)
	if err != nil {
		h.fail(c, "failed to load violation stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// fail maps an error onto its HTTP status, defaulting to 500. Store
// outages get a generic 503; no store internals reach the body.
func (h *AdminHandler) fail(c *gin.Context, msg string, err error) {
	h.log.Error(c.Request.Context(), msg, err)

	if errors.IsStoreUnavailable(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "counter store unavailable"})
		return
	}

	status := http.StatusInternalServerError
	var app *errors.AppError
	if stderrors.As(err, &app) {
		status = app.HTTPStatus()
	}
	c.JSON(status, gin.H{"error": msg})
}
