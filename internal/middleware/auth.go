package middleware

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/models"
	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxSessionKey   = "authSession"
)

// SessionResolver is the part of the session manager the bearer middleware needs.
type SessionResolver interface {
	GetActiveSession(ctx context.Context, sessionID string) (*models.LoginSession, error)
	UpdateLastActivity(ctx context.Context, sessionID string) (bool, error)
}

// Auth enforces JWT authentication and requires the session named by the
// token to still be live. Each accepted request refreshes the session's
// last activity.
func Auth(jwt *iauth.JWTService, sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			unauthorized(c, errors.ErrUnauthorized)
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			unauthorized(c, errors.ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		session, err := sessions.GetActiveSession(ctx, claims.SessionID)
		if err != nil {
			if stdErrors.Is(err, iauth.ErrStoreUnavailable) {
				response.Error(c, errors.ErrSessionStoreUnavailable.WithInternal(err))
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}
		if session == nil || session.UserID != claims.UserID {
			unauthorized(c, errors.ErrSessionExpired)
			return
		}

		// A failed touch is logged by the manager and never rejects the request.
		_, _ = sessions.UpdateLastActivity(ctx, session.SessionID)

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxSessionIDKey, claims.SessionID)
		c.Set(CtxSessionKey, session)

		c.Next()
	}
}

func unauthorized(c *gin.Context, err *errors.AppError) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, err)
	c.Abort()
}
