package app

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakshelf/library-lending-backend/internal/announcement"
	"github.com/oakshelf/library-lending-backend/internal/api"
	"github.com/oakshelf/library-lending-backend/internal/auth"
	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/genre"
	"github.com/oakshelf/library-lending-backend/internal/notify"
	"github.com/oakshelf/library-lending-backend/internal/pkg/storage"
	"github.com/oakshelf/library-lending-backend/internal/reservation"
	"github.com/oakshelf/library-lending-backend/internal/user"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction    bool
	ProdOrigins     string
	DBPool          *pgxpool.Pool
	JWTSecret       string
	JWTTTL          time.Duration
	BcryptCost      int
	StorageDir      string
	DefaultLoanDays int
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	JWTManager *auth.JWTManager
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) (*Container, error) {
	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	store, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init local storage failed: %w", err)
	}

	notifier := notify.NewLogNotifier()

	// User Module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher)

	// Genre Module
	genreRepo := genre.NewPgxRepository(cfg.DBPool)
	genreService := genre.NewService(genreRepo)

	// Book Module
	bookRepo := book.NewPgxRepository(cfg.DBPool)
	bookService := book.NewService(bookRepo, store, cfg.DefaultLoanDays)

	// Reservation Module
	resRepo := reservation.NewPgxRepository(cfg.DBPool)
	resService := reservation.NewService(resRepo, userService, notifier)

	// Announcement Module
	annRepo := announcement.NewPgxRepository(cfg.DBPool)
	annService := announcement.NewService(annRepo)

	// API Router Config
	routerParams := api.Config{
		IsProduction:       cfg.IsProduction,
		ProdOrigins:        cfg.ProdOrigins,
		UserService:        userService,
		BookService:        bookService,
		GenreService:       genreService,
		ReservationService: resService,
		AnnService:         annService,
		JWTManager:         jwtManager,
	}

	// Router
	router := api.NewRouter(routerParams)

	return &Container{
		Router:     router,
		JWTManager: jwtManager,
	}, nil
}
