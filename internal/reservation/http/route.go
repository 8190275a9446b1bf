package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, librarianMiddleware gin.HandlerFunc) {
	group := g.Group("/reservations")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("", h.Create)
		group.POST("/:id/cancel", h.Cancel)
		group.GET("/:id/file", h.Download)
	}

	// === Approver Routes (Librarian or Admin) ===
	approverGroup := group.Group("")
	approverGroup.Use(librarianMiddleware)
	{
		approverGroup.POST("/:id/approve", h.Approve)
		approverGroup.POST("/:id/reject", h.Reject)
		approverGroup.POST("/:id/issue", h.Issue)
		approverGroup.POST("/:id/return", h.Return)
	}

	// Waitlist browsing lives under the book path.
	g.GET("/books/:id/waitlist", authMiddleware, librarianMiddleware, h.ListWaitlist)
}
