package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakshelf/library-lending-backend/internal/auth"
	"github.com/oakshelf/library-lending-backend/internal/user"
)

// RequireLibrarian ensures the authenticated user is library staff (librarian or admin).
// It MUST be used after auth.AuthRequired middleware.
func RequireLibrarian(userService user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := authenticatedUser(c, userService)
		if u == nil {
			return
		}

		if !u.CanApprove() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: librarian access required"})
			return
		}

		c.Next()
	}
}

// RequireAdmin ensures the authenticated user is a system admin.
// It MUST be used after auth.AuthRequired middleware.
func RequireAdmin(userService user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := authenticatedUser(c, userService)
		if u == nil {
			return
		}

		if !u.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: admin access required"})
			return
		}

		c.Next()
	}
}

func authenticatedUser(c *gin.Context, userService user.Service) *user.User {
	userID := auth.GetUserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}

	u, err := userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil
	}

	if !u.IsActive {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: account disabled"})
		return nil
	}

	return u
}
