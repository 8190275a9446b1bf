package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oakshelf/library-lending-backend/internal/announcement"
	annHttp "github.com/oakshelf/library-lending-backend/internal/announcement/http"
	"github.com/oakshelf/library-lending-backend/internal/auth"
	"github.com/oakshelf/library-lending-backend/internal/book"
	bookHttp "github.com/oakshelf/library-lending-backend/internal/book/http"
	"github.com/oakshelf/library-lending-backend/internal/genre"
	genreHttp "github.com/oakshelf/library-lending-backend/internal/genre/http"
	"github.com/oakshelf/library-lending-backend/internal/reservation"
	resHttp "github.com/oakshelf/library-lending-backend/internal/reservation/http"
	"github.com/oakshelf/library-lending-backend/internal/user"
	userHttp "github.com/oakshelf/library-lending-backend/internal/user/http"
)

// Config holds the services and settings the router depends on.
type Config struct {
	IsProduction bool
	ProdOrigins  string

	UserService        user.Service
	BookService        book.Service
	GenreService       genre.Service
	ReservationService reservation.Service
	AnnService         announcement.Service

	JWTManager *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{
			"http://localhost:3000", // Web frontend
			"http://localhost:8081", // Swagger
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// librarianMiddleware: Further checks if the authenticated user is library staff.
	librarianMiddleware := RequireLibrarian(cfg.UserService)
	// adminMiddleware: Further checks if the authenticated user is a system admin.
	adminMiddleware := RequireAdmin(cfg.UserService)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	bookHandler := bookHttp.NewHandler(cfg.BookService)
	genreHandler := genreHttp.NewHandler(cfg.GenreService)
	resHandler := resHttp.NewHandler(cfg.ReservationService, cfg.UserService, cfg.BookService)
	annHandler := annHttp.NewHandler(cfg.AnnService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		userHttp.RegisterRoutes(v1, userHandler, authMiddleware, adminMiddleware)
		bookHttp.RegisterRoutes(v1, bookHandler, authMiddleware, librarianMiddleware)
		genreHttp.RegisterRoutes(v1, genreHandler, authMiddleware, librarianMiddleware)
		resHttp.RegisterRoutes(v1, resHandler, authMiddleware, librarianMiddleware)
		annHttp.RegisterRoutes(v1, annHandler, authMiddleware, librarianMiddleware)
	}

	return r
}
