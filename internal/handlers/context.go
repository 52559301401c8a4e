package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/rosterinvites/internal/middleware"
	"github.com/charlesng35/rosterinvites/internal/services"
	appErrors "github.com/charlesng35/rosterinvites/pkg/errors"
	"github.com/charlesng35/rosterinvites/pkg/response"
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

// actorFromContext reads the identity placed by the auth middleware. When no
// identity is present an unauthorized response is written and false returned.
func actorFromContext(c *gin.Context) (services.Actor, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return services.Actor{}, false
	}
	return services.Actor{
		ID:          userID,
		DisplayName: c.GetString(middleware.CtxDisplayNameKey),
		Role:        c.GetString(middleware.CtxRoleKey),
	}, true
}
