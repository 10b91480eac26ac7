package router

import (
	"fmt"
	"net/http"

	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/handlers"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/middleware"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/anonto42/lovesignal/backend/internal/store"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the infrastructure pieces the routes are built on.
type Deps struct {
	Store        store.Store
	StoreBackend string
	// Postgres backs notifications; nil disables them.
	Postgres  *gorm.DB
	Provider  identity.Provider
	Publisher events.Publisher
	Ledger    services.LedgerConfig
	Logger    *zap.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	publishers := events.Multi{}
	if deps.Publisher != nil {
		publishers = append(publishers, deps.Publisher)
	}

	var notificationRepo repositories.NotificationRepository
	if deps.Postgres != nil {
		if err := deps.Postgres.AutoMigrate(&models.Account{}, &models.Notification{}); err != nil {
			return fmt.Errorf("auto migrate models: %w", err)
		}
		logger.Info("PostgreSQL auto-migrations completed")
		notificationRepo = repositories.NewPostgresNotificationRepository(deps.Postgres)
		publishers = append(publishers, events.NewNotificationPublisher(notificationRepo))
	}

	// Health check - always accessible
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.StoreBackend)
	e.GET("/health", healthHandler.HealthCheck)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "lovesignal"})
	})

	// --- Initialize Repositories ---
	profileRepo := repositories.NewStoreProfileRepository(deps.Store)
	contactRepo := repositories.NewStoreContactRepository(deps.Store)
	signalRepo := repositories.NewStoreSignalRepository(deps.Store)

	// --- Initialize Services ---
	accounts := services.NewAccountService(deps.Provider, profileRepo, logger)
	contacts := services.NewContactManager(contactRepo, profileRepo, publishers, logger)
	ledger := services.NewSignalLedger(signalRepo, profileRepo, contacts, deps.Ledger, publishers, logger)

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(accounts)
	authHandler.RegisterAuthRoutes(authGroup)
	logger.Debug("auth routes configured")

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(middleware.IdentityMiddleware(accounts))
	authHandler.RegisterSessionRoutes(api)

	contactHandler := handlers.NewContactHandler(contacts, profileRepo)
	contactHandler.RegisterContactRoutes(api)
	logger.Debug("contact routes configured")

	signalHandler := handlers.NewSignalHandler(ledger, profileRepo)
	signalHandler.RegisterSignalRoutes(api)
	logger.Debug("signal routes configured")

	streamHandler := handlers.NewStreamHandler(ledger, contacts, profileRepo, logger)
	streamHandler.RegisterStreamRoutes(api)
	logger.Debug("stream routes configured")

	if notificationRepo != nil {
		notificationHandler := handlers.NewNotificationHandler(notificationRepo, profileRepo)
		notificationHandler.RegisterNotificationRoutes(api)
		logger.Debug("notification routes configured")
	}

	logger.Info("all routes configured",
		zap.String("store", deps.StoreBackend),
		zap.String("policy", ledger.Policy().Name()),
		zap.String("ledger_mode", string(ledger.Mode())))
	return nil
}
