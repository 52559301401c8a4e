package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/rosterinvites/internal/auth"
	"github.com/charlesng35/rosterinvites/pkg/errors"
	"github.com/charlesng35/rosterinvites/pkg/response"
)

const (
	CtxUserIDKey      = "userID"
	CtxDisplayNameKey = "displayName"
	CtxRoleKey        = "role"
)

// IdentityVerifier turns a bearer token into the caller identity.
type IdentityVerifier interface {
	Authenticate(token string) (iauth.Identity, error)
}

// Auth enforces bearer token authentication using the supplied verifier.
func Auth(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		identity, err := verifier.Authenticate(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, identity.UserID)
		c.Set(CtxDisplayNameKey, identity.DisplayName)
		c.Set(CtxRoleKey, identity.Role)

		c.Next()
	}
}
