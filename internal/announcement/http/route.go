package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers announcement routes.
// The notice board is public; posting requires librarian privileges.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, librarianMiddleware gin.HandlerFunc) {
	group := g.Group("/announcements")
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)

		staff := group.Group("", authMiddleware, librarianMiddleware)
		{
			staff.POST("", h.Create)
			staff.PATCH("/:id", h.Update)
			staff.DELETE("/:id", h.Delete)
		}
	}
}
