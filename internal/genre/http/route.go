package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers genre catalog routes.
// Reads are public; writes require librarian privileges.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, librarianMiddleware gin.HandlerFunc) {
	genres := g.Group("/genres")
	{
		genres.GET("", h.List)
		genres.GET("/:id", h.Get)

		staff := genres.Group("", authMiddleware, librarianMiddleware)
		{
			staff.POST("", h.Create)
			staff.PATCH("/:id", h.Update)
			staff.DELETE("/:id", h.Delete)
		}
	}
}
