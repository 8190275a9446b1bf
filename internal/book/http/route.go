package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, librarianMiddleware gin.HandlerFunc) {
	group := g.Group("/books")

	// === Public Routes ===
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/cover", h.GetCover)

	// === Librarian Routes ===
	manageGroup := group.Group("")
	manageGroup.Use(authMiddleware, librarianMiddleware)
	{
		manageGroup.POST("", h.Create)
		manageGroup.PATCH("/:id", h.Update)
		manageGroup.DELETE("/:id", h.Delete)
		manageGroup.POST("/:id/units", h.AddUnits)
		manageGroup.DELETE("/:id/units", h.RemoveUnits)
		manageGroup.POST("/:id/cover", h.UploadCover)
		manageGroup.POST("/:id/file", h.UploadFile)
	}
}
