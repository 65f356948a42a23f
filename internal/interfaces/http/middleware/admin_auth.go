package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// abortWithError stops the chain with a structured application error.
func abortWithError(c *gin.Context, app *errors.AppError) {
	c.AbortWithStatusJSON(app.HTTPStatus(), gin.H{"error": app.Error()})
}

// adminClaims is the expected shape of an admin token.
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth guards the admin endpoints with an HS256 bearer token carrying
// a "role": "admin" claim. An empty secret disables the admin surface
// entirely rather than leaving it open.
func AdminAuth(secret string, log logger.Logger) gin.HandlerFunc {
	authLog := log.WithComponent("admin_auth")

	return func(c *gin.Context) {
		if secret == "" {
			abortWithError(c, errors.ErrForbidden("admin API is not configured"))
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			abortWithError(c, errors.ErrUnauthorized("missing bearer token"))
			return
		}

		claims := &adminClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			authLog.Warn(c.Request.Context(), "rejected admin token",
				logger.String("remote", c.ClientIP()),
			)
			abortWithError(c, errors.ErrUnauthorized("invalid token"))
			return
		}
		if claims.Role != "admin" {
			abortWithError(c, errors.ErrForbidden("admin role required"))
			return
		}

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyAdminSubject, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
