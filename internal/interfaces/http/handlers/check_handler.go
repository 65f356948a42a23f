// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/internal/interfaces/http/middleware"
	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// writeError answers with a structured application error.
func writeError(c *gin.Context, app *errors.AppError) {
	c.JSON(app.HTTPStatus(), gin.H{"error": app.Error()})
}

// CheckHandler serves the rate limit check endpoint platform services call
// before executing an operation.
type CheckHandler struct {
	svc service.RateLimitService
	log logger.Logger
}

// NewCheckHandler creates the check handler.
func NewCheckHandler(svc service.RateLimitService, log logger.Logger) *CheckHandler {
	return &CheckHandler{svc: svc, log: log.WithComponent("check_handler")}
}

// checkRequest is the optional request body. Identifier narrows the
// identity (e.g. a poll ID); UserID marks the caller as authenticated.
// UserID is taken on trust: the endpoint serves the platform's own
// backend services, which have already verified the session. Identity
// still pins the client IP and burst protection is IP-only, so a forged
// userId cannot escape per-address limits.
type checkRequest struct {
	Identifier string `json:"identifier"`
	UserID     string `json:"userId"`
}

// Check handles POST /api/v1/check/:operation. 204 with quota headers when
// allowed, the structured 429 body when rejected, 503 when strict mode hit
// a store failure.
func (h *CheckHandler) Check(c *gin.Context) {
	op, err := models.ParseOperation(c.Param("operation"))
	if err != nil {
		writeError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}

	var req checkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, errors.ErrInvalidRequest("malformed request body"))
			return
		}
	}

	ctx := c.Request.Context()
	if req.UserID != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyUserID, req.UserID)
	}

	verdict := h.svc.Check(ctx, c.Request, op, req.Identifier)
	middleware.WriteVerdictHeaders(c, verdict)
	if verdict.Allowed {
		c.Status(http.StatusNoContent)
		return
	}
	middleware.AbortWithVerdict(c, verdict)
}
