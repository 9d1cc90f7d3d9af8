package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/logger"
	"github.com/noah-isme/coaching-console/pkg/response"
)

// ContextUserKey is the gin context key storing the session claims.
const ContextUserKey = "currentUser"

type sessionGate interface {
	Validate(token string) (*models.SessionClaims, error)
	Matches(token string) bool
	Login(token string) (models.UserInfo, error)
}

// Session requires a valid bearer token and makes its user the console session. A token
// of another user switches the session, which drops the previous user's cached data.
func Session(sessions sessionGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearer(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, err)
			return
		}
		claims, err := sessions.Validate(token)
		if err != nil {
			response.Abort(c, err)
			return
		}
		if !sessions.Matches(token) {
			if _, err := sessions.Login(token); err != nil {
				response.Abort(c, err)
				return
			}
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.UserKey, claims.User().ID)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by Session.
func ClaimsFromContext(c *gin.Context) *models.SessionClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.SessionClaims)
	return claims
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
