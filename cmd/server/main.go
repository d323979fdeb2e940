package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusflow/backend/internal/application/services"
	"github.com/nexusflow/backend/internal/bootstrap"
	"github.com/nexusflow/backend/internal/infrastructure/actions"
	"github.com/nexusflow/backend/internal/infrastructure/database"
	"github.com/nexusflow/backend/internal/interfaces/middleware"
	"github.com/nexusflow/backend/internal/interfaces/rest"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	// Initialize database connection
	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	ctx := context.Background()
	if err := bootstrap.InitializeSchema(ctx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize service manager
	svcMgr := services.NewServiceManager(db, actions.NewWebhookExecutor())
	log.Println("🔧 Service manager initialized")

	// Initialize system data (system actor, admin user)
	if err := bootstrap.InitializeSystemData(ctx, svcMgr.Users); err != nil {
		log.Fatalf("Failed to initialize system data: %v", err)
	}

	// Create Gin router
	router := gin.Default()
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Debug/pprof endpoints for goroutine debugging
	debug := router.Group("/debug/pprof")
	{
		debug.GET("/goroutine", gin.WrapH(http.DefaultServeMux))
		debug.GET("/heap", gin.WrapH(http.DefaultServeMux))
		debug.GET("/profile", gin.WrapH(http.DefaultServeMux))
		debug.GET("/trace", gin.WrapH(http.DefaultServeMux))
	}

	// Initialize handlers
	authHandler := rest.NewAuthHandler(svcMgr.Auth)
	templateHandler := rest.NewTemplateHandler(svcMgr.Templates)
	workflowHandler := rest.NewWorkflowHandler(svcMgr.Workflow)
	delegationHandler := rest.NewDelegationHandler(svcMgr.Delegations)
	notificationHandler := rest.NewNotificationHandler(svcMgr.Notification)

	// Initialize middleware
	requireAuth := middleware.RequireAuth()
	requireAdmin := middleware.RequireAdmin()

	// API routes
	api := router.Group("/api")
	{
		// Public auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// Template management (admin writes, any authenticated user reads)
		templates := api.Group("/templates")
		templates.Use(requireAuth)
		{
			templates.GET("", templateHandler.List)
			templates.GET("/:id", templateHandler.Get)
			templates.POST("", requireAdmin, templateHandler.Create)
			templates.PUT("/:id", requireAdmin, templateHandler.Update)
			templates.DELETE("/:id", requireAdmin, templateHandler.Deactivate)
		}

		// Workflow instances
		workflows := api.Group("/workflows")
		workflows.Use(requireAuth)
		{
			workflows.POST("", workflowHandler.Start)
			workflows.GET("", workflowHandler.List)
			workflows.GET("/stats", workflowHandler.Stats)
			workflows.GET("/:id/history", workflowHandler.History)
			workflows.POST("/:id/cancel", workflowHandler.Cancel)
			workflows.POST("/:id/retry", requireAdmin, workflowHandler.RetryStalled)
		}

		// Approval work items
		approvals := api.Group("/approvals")
		approvals.Use(requireAuth)
		{
			approvals.GET("/pending", workflowHandler.Pending)
			approvals.GET("/pending/count", workflowHandler.PendingCount)
			approvals.POST("/:id/act", workflowHandler.Act)
		}

		// Delegation management (admin only)
		delegations := api.Group("/delegations")
		delegations.Use(requireAuth, requireAdmin)
		{
			delegations.GET("", delegationHandler.List)
			delegations.POST("", delegationHandler.Create)
			delegations.DELETE("/:id", delegationHandler.Delete)
		}

		// Notifications
		notifications := api.Group("/notifications")
		notifications.Use(requireAuth)
		{
			notifications.GET("", notificationHandler.ListUnread)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}
	}

	// Start the escalation scheduler
	go svcMgr.Scheduler.Start()
	log.Println("⏰ Escalation scheduler started")

	log.Println("\n═══════════════════════════════════════════════════════════════════════════")
	log.Println("🚀 NexusFlow Workflow Engine Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:         http://localhost:%s", port)
	log.Printf("🔐 Auth API:       http://localhost:%s/api/auth", port)
	log.Printf("📋 Templates API:  http://localhost:%s/api/templates", port)
	log.Printf("🔄 Workflows API:  http://localhost:%s/api/workflows", port)
	log.Printf("📈 Metrics:        http://localhost:%s/metrics", port)
	log.Printf("💚 Health check:   http://localhost:%s/health\n", port)

	// Create HTTP server
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background workers and broker
	svcMgr.Close()
	log.Println("🛑 Scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
