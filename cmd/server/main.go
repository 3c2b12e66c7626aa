package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marchkov/shuttle-backend/internal/config"
	"github.com/marchkov/shuttle-backend/internal/database"
	"github.com/marchkov/shuttle-backend/internal/handlers"
	"github.com/marchkov/shuttle-backend/internal/middleware"
	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/internal/services"
	"github.com/marchkov/shuttle-backend/pkg/jwt"
	"github.com/marchkov/shuttle-backend/pkg/portal"
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

	logger.Info("Starting shuttle reservation backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Remote portal transport
	limiter := rate.NewLimiter(rate.Limit(cfg.Portal.RateLimit), cfg.Portal.RateBurst)
	portalFactory := portal.NewHTTPFactory(portal.HTTPConfig{
		AuthURL:   cfg.Portal.AuthURL,
		BaseURL:   cfg.Portal.BaseURL,
		AppID:     cfg.Portal.AppID,
		Timeout:   cfg.Portal.RequestTimeout,
		UserAgent: cfg.Portal.UserAgent,
	}, limiter, logger)

	// Initialize services
	logger.Info("Initializing services...")
	sessionPolicy, err := services.ParseSessionPolicy(cfg.Session.Policy)
	if err != nil {
		logger.Fatalf("Invalid session configuration: %v", err)
	}
	sessions := services.NewSessionManager(portalFactory, portal.Credentials{
		Username: cfg.Portal.Username,
		Password: cfg.Portal.Password,
	}, services.SessionConfig{
		Expiry:       cfg.Session.Expiry,
		TimetableTTL: cfg.Session.TimetableTTL,
		Policy:       sessionPolicy,
		MaxAttempts:  cfg.Session.AuthMaxAttempts,
		Backoff: services.BackoffConfig{
			Base: cfg.Session.AuthBackoffBase,
			Max:  cfg.Session.AuthBackoffMax,
		},
	}, logger)

	mapping, err := models.NewRouteMapping(cfg.Schedule.OutboundRouteIDs, cfg.Schedule.ReturnRouteIDs)
	if err != nil {
		logger.Fatalf("Invalid route mapping: %v", err)
	}
	expiredPolicy, err := services.ParseExpiredPolicy(cfg.Schedule.ExpiredSlotPolicy)
	if err != nil {
		logger.Fatalf("Invalid schedule configuration: %v", err)
	}

	timetables := services.NewTimetableService(sessions, mapping, logger)
	reservations := services.NewReservationService(logger)

	// Optional ride journal
	var recorder services.RideRecorder = services.NoopRecorder{}
	var recordLister handlers.RecordLister
	var db database.DB
	if cfg.Database.Enabled() {
		logger.Info("Connecting to database...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		conn, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			cancel()
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		repo := database.NewRideRecordRepository(conn)
		if err := repo.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatalf("Failed to prepare ride journal: %v", err)
		}
		cancel()
		defer conn.Close()

		db = conn
		recorder = repo
		recordLister = repo
		logger.Info("✓ Ride journal enabled")
	} else {
		logger.Info("DATABASE_URL not set, ride journal disabled")
	}

	shuttleService := services.NewShuttleService(sessions, timetables, reservations, recorder, services.ShuttleConfig{
		Selector: services.SelectorConfig{
			Mapping:      mapping,
			PrevInterval: cfg.Schedule.PrevInterval,
			NextInterval: cfg.Schedule.NextInterval,
			Policy:       expiredPolicy,
			Location:     cfg.Schedule.Location,
		},
		CriticalTime:            cfg.Schedule.CriticalTime,
		MorningToOutbound:       cfg.Schedule.MorningToOutbound,
		AutoCancelOnCodeFailure: cfg.Reservation.AutoCancelOnCodeFailure,
	}, logger)

	// Initialize and start cron service
	cronService := services.NewCronService(shuttleService, cfg.Cron.AutoReserveSchedules, cfg.Schedule.Location, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize handlers
	rateLimitService := services.NewRateLimitService(services.DefaultRateLimitConfig())
	authHandler := handlers.NewAuthHandler(jwtService, rateLimitService, cfg.Auth.PasswordHash, logger)
	shuttleHandler := handlers.NewShuttleHandler(shuttleService, recordLister, logger)
	adminHandler := handlers.NewAdminHandler(cronService)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.CORS)))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, sessions))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Authentication routes (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandler.IssueToken)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService, logger))

		shuttle := protected.Group("/shuttle")
		{
			shuttle.POST("/login", shuttleHandler.Login)
			shuttle.POST("/reserve", shuttleHandler.Reserve)
			shuttle.POST("/cancel", shuttleHandler.Cancel)
			shuttle.GET("/history", shuttleHandler.History)
			shuttle.GET("/overview", shuttleHandler.Overview)
			shuttle.GET("/records", shuttleHandler.Records)
		}

		admin := protected.Group("/admin")
		{
			admin.GET("/cron/status", adminHandler.CronStatus)
			admin.POST("/cron/run", adminHandler.RunCron)
		}
	}

	// Create HTTP server. Reservation runs include login backoff, so writes get a long timeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping cron service...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}
	return c
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(middleware.RequestIDKey),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if operatorCtx, ok := middleware.GetOperatorContext(c); ok {
			fields["operator"] = operatorCtx.Operator
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "disabled"
		if db != nil {
			dbStatus = "healthy"
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": "unhealthy",
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"database":       dbStatus,
			"portal_session": sessions.Active(),
			"version":        version,
			"timestamp":      time.Now().Unix(),
		})
	}
}
