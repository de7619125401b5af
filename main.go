package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"home-service-server/config"
	"home-service-server/database"
	"home-service-server/jobs"
	"home-service-server/middleware"
	"home-service-server/repository"
	"home-service-server/routes"
	ws "home-service-server/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	config.Load()

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Set Gin mode
	if config.AppConfig.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	// Security middleware
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Home Service Server is running",
			"time":    time.Now().UTC(),
		})
	})

	// Dispatch hub over the authoritative stores
	hub := ws.NewHub(
		repository.NewBookingRepo(database.DB),
		repository.NewRatingRepo(database.DB),
		repository.NewUserRepo(database.DB),
	)
	go hub.Run()

	// WebSocket endpoint; the auth middleware rejects bad credentials
	// before the upgrade, so unauthenticated connections never reach the hub
	router.GET("/api/v1/ws", middleware.WebSocketAuthMiddleware(), func(c *gin.Context) {
		ws.ServeWS(hub, c)
	})

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware())
	{
		// Auth routes (no authentication required) - with strict rate limiting
		authRoutes := api.Group("/auth")
		authRoutes.Use(middleware.AuthRateLimitMiddleware())
		routes.RegisterAuthRoutes(authRoutes)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			routes.RegisterProfileRoutes(protected)

			bookingRoutes := protected.Group("/bookings")
			routes.RegisterBookingRoutes(bookingRoutes, hub)

			providerRoutes := protected.Group("/providers")
			routes.RegisterProviderRoutes(providerRoutes)

			ratingRoutes := protected.Group("/ratings")
			routes.RegisterRatingRoutes(ratingRoutes)
		}
	}

	// Start background jobs
	cleanupJob := jobs.NewTokenCleanupJob()
	cleanupJob.Start()
	defer cleanupJob.Stop()

	port := config.AppConfig.Server.Port
	log.Printf("Server starting on port %s", port)
	if err := router.Run("0.0.0.0:" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
