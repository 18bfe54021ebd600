package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiongate/internal/middleware"
	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// callerIdentity returns the user and session ids stored by the bearer
// middleware. It writes a 401 and reports false when either is missing.
func callerIdentity(c *gin.Context) (userID, sessionID string, ok bool) {
	userID = c.GetString(middleware.CtxUserIDKey)
	sessionID = c.GetString(middleware.CtxSessionIDKey)
	if userID == "" || sessionID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", "", false
	}
	return userID, sessionID, true
}
