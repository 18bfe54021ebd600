package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiongate/pkg/crypto"
	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/response"
)

// ServiceTokenHeader carries the shared secret of trusted backend callers.
const ServiceTokenHeader = "X-Service-Token"

// ServiceToken admits only callers presenting the configured service token.
// An empty configured token rejects every request.
func ServiceToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !crypto.TokensEqual(token, c.GetHeader(ServiceTokenHeader)) {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
