package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"TrainPay/internal/database"
	"TrainPay/internal/handlers"
	"TrainPay/internal/routes"
	"TrainPay/internal/scheduler"
	"TrainPay/internal/services"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatal("❌ Failed to migrate database:", err)
	}
	log.Println("✅ Database connected and migrated successfully")

	// Payment gateway
	gateway := services.NewStripeService()

	// Notification dispatch: email when Resend is configured, quiet otherwise
	var sinks []services.NotificationSink
	if os.Getenv("RESEND_API_KEY") != "" {
		sinks = append(sinks, services.NewEmailSink())
		log.Println("✅ Email notifications enabled")
	} else {
		log.Println("⚠️  RESEND_API_KEY not set, email notifications disabled")
	}
	notifier := services.NewNotificationService(database.DB, sinks...)

	// Evidence uploads are optional; dispute filing works without them
	uploads, err := services.NewCloudinaryService()
	if err != nil {
		log.Printf("⚠️  Cloudinary not configured, evidence uploads disabled: %v", err)
		uploads = nil
	} else {
		log.Println("✅ Cloudinary service initialized successfully")
	}

	escrowSvc := services.NewEscrowService(database.DB, gateway, notifier).
		WithLegacyDirectComplete(os.Getenv("ALLOW_LEGACY_DIRECT_COMPLETE") == "true")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "TrainPay API v1.0",
		BodyLimit: 10 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to TrainPay API",
			"status":  "running",
			"version": "1.0",
		})
	})

	// Setup application routes
	routes.SetupRoutes(app)
	routes.SetupEscrowRoutes(app, handlers.NewEscrowHandler(escrowSvc, uploads))
	routes.SetupAdminRoutes(app, handlers.NewAdminHandler(database.DB, escrowSvc, gateway))
	routes.SetupWebhookRoutes(app, handlers.NewWebhookHandler(database.DB, os.Getenv("STRIPE_WEBHOOK_SECRET"), gateway))
	routes.SetupNotificationRoutes(app, handlers.NewNotificationHandler(database.DB))

	// Auto-release sweep runs in the background for the life of the server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.New(escrowSvc, scheduler.DefaultInterval).Run(ctx)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 TrainPay server starting on http://localhost:%s", port)
	log.Fatal(app.Listen(":" + port))
}
