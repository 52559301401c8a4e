package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/rosterinvites/internal/handlers"
)

func registerInvitationRoutes(api *gin.RouterGroup, handler *handlers.InvitationHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/invitations")
	{
		group.POST("", handler.Create)
		group.GET("", handler.List)
		group.GET("/sent", handler.Sent)
		group.GET("/resolve", handler.Resolve)
		group.GET("/:id", handler.Get)
		group.POST("/:id/accept", handler.Accept)
		group.POST("/:id/reject", handler.Reject)
		group.POST("/:id/grant", handler.Grant)
	}
}
