package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/config"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/handlers"
	"github.com/tourdesk/ledger-backend/internal/middleware"
	"github.com/tourdesk/ledger-backend/internal/services"
	"github.com/tourdesk/ledger-backend/pkg/jwt"
	"github.com/tourdesk/ledger-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting TourDesk ledger backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	store, pinger, closeStore := openStore(cfg, logger)
	defer closeStore()

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	payments := services.NewPaymentService(store, services.PaymentServiceConfig{
		MaxConflictRetries: cfg.Ledger.MaxConflictRetries,
		RetryBackoff:       services.DefaultPaymentServiceConfig().RetryBackoff,
	}, logger)
	reminders := services.NewReminderService(store, logger)
	notifier := services.NewBulkNotifier(store, reminders, newGateway(cfg.SMS, logger), services.BulkNotifierConfig{
		Workers:      cfg.Reminder.Workers,
		MaxAttempts:  cfg.Reminder.MaxAttempts,
		BaseBackoff:  cfg.Reminder.BaseBackoff,
		MaxBackoff:   cfg.Reminder.MaxBackoff,
		MaxBatchSize: cfg.Reminder.MaxBatchSize,
	}, logger)
	queries := services.NewReminderQueryService(store)
	logger.Info("Services initialized")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !allowsAnyOrigin(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(cfg.Database.Driver, pinger))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, logger))
	handlers.RegisterRoutes(v1,
		handlers.NewPaymentHandler(payments, logger),
		handlers.NewReminderHandler(queries, reminders, notifier, logger),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // bulk sends hold the request open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// openStore selects the booking store. The memory store is seeded with demo bookings.
func openStore(cfg *config.Config, logger *logrus.Logger) (database.BookingStore, func(context.Context) error, func()) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		store := database.NewMemoryStore()
		packages, bookings := demoData(time.Now())
		store.Seed(packages, bookings)
		return store, nil, func() {}
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established")

	return database.NewBookingRepository(db), db.PingContext, func() { db.Close() }
}

func newGateway(cfg config.SMSConfig, logger *logrus.Logger) sms.Gateway {
	if cfg.Mode == "production" {
		logger.WithField("api_url", cfg.APIURL).Info("SMS gateway in production mode")
		return sms.NewHTTPGateway(sms.HTTPConfig{
			APIURL:   cfg.APIURL,
			Username: cfg.Username,
			Password: cfg.Password,
			SenderID: cfg.SenderID,
			Timeout:  cfg.Timeout,
		}, logger)
	}
	logger.Info("SMS gateway in development mode (messages are only logged)")
	return sms.NewLogGateway(logger)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if userID, exists := c.Get("user_id"); exists {
			fields["user_id"] = userID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports store health. A nil ping means the memory store.
func healthCheckHandler(driver string, ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": driver,
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  driver,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
