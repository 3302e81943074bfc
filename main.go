package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"

	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/idempotency"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, cleanup, err := buildApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer cleanup()

	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}

// buildApp wires configuration into a ready Fiber app. cleanup releases the
// database, Redis and RabbitMQ connections in reverse order of acquisition.
func buildApp(cfg config.Config) (*fiber.App, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Database ---
	db, err := repositories.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := repositories.Migrate(db); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Repositories ---
	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	wishlistRepo := repositories.NewGORMWishlistRepository(db)

	// --- Idempotency keys ---
	keys, closeKeys := newIdempotencyStore(cfg)
	closers = append(closers, closeKeys)

	// --- Order events ---
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: services.OrderEventsExchange})
		if err != nil {
			log.Printf("Warning: order events disabled, RabbitMQ unavailable: %v", err)
		} else {
			publisher = mqClient
			closers = append(closers, func() {
				if err := mqClient.Close(); err != nil {
					log.Printf("Error closing RabbitMQ client: %v", err)
				}
			})
			startOrderEventConsumer(mqClient)
		}
	} else {
		log.Println("RABBITMQ_URL not set. Order events disabled.")
	}

	// --- Services ---
	authService := services.NewAuthService(userRepo, cfg.JWTSecret)
	productService := services.NewProductService(productRepo)
	cartService := services.NewCartService(cartRepo, productRepo)
	checkoutService := services.NewCheckoutService(orderRepo, cartService, keys, publisher, authService, cfg.IdempotencyTTL)
	wishlistService := services.NewWishlistService(wishlistRepo, productRepo)

	ctx := context.Background()
	if cfg.AdminUsername != "" {
		if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if cfg.SeedDemoData {
		seedProducts(ctx, productRepo)
	}

	// --- Fiber ---
	app := fiber.New(fiber.Config{AppName: "storefront"})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	apiV1 := app.Group("/api/v1")
	authRequired := middleware.AuthRequired(authService)

	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)
	handlers.NewProductHandler(productService).RegisterRoutes(apiV1,
		authRequired, middleware.RequireCapability(authService, services.CapabilityManageCatalog))
	handlers.NewCartHandler(cartService).RegisterRoutes(apiV1, authRequired)
	handlers.NewOrderHandler(checkoutService).RegisterRoutes(apiV1, authRequired)
	handlers.NewWishlistHandler(wishlistService).RegisterRoutes(apiV1, authRequired)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
			"events": publisher != nil,
		})
	})

	return app, cleanup, nil
}

// newIdempotencyStore uses Redis when configured and reachable, the in-process store otherwise.
func newIdempotencyStore(cfg config.Config) (idempotency.Store, func()) {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set. Using in-memory idempotency store.")
		return idempotency.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis at %s unreachable, using in-memory idempotency store: %v", cfg.RedisAddr, err)
		client.Close()
		return idempotency.NewMemoryStore(), func() {}
	}

	log.Printf("Using Redis idempotency store at %s", cfg.RedisAddr)
	return idempotency.NewRedisStore(client), func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}
}

func startOrderEventConsumer(mqClient *rabbitmq.Client) {
	log.Println("Starting RabbitMQ consumer for orders...")
	if err := mqClient.ConsumeOrderEvents(logOrderEvent); err != nil {
		log.Printf("Failed to start RabbitMQ consumer: %v", err)
	}
}

// logOrderEvent is the downstream side of order.* messages in this service: it
// records them. Undecodable bodies are rejected.
func logOrderEvent(msg amqp.Delivery) error {
	var event struct {
		OrderID string `json:"order_id"`
		UserID  string `json:"user_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return err
	}
	log.Printf("Received %s: order %s for user %s is %s", msg.RoutingKey, event.OrderID, event.UserID, event.Status)
	return nil
}

// seedProducts fills an empty catalog with demo data.
func seedProducts(ctx context.Context, repo repositories.ProductRepository) {
	existing, err := repo.GetAll(ctx)
	if err != nil {
		log.Printf("Error checking catalog before seeding: %v", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	products := []models.Product{
		{Title: "Laptop", Description: "High performance laptop", Category: "electronics", Price: decimal.RequireFromString("1200.00"), Stock: 10, IsActive: true},
		{Title: "Keyboard", Description: "Mechanical keyboard", Category: "electronics", Price: decimal.RequireFromString("75.00"), Stock: 25, IsActive: true},
		{Title: "Mouse", Description: "Ergonomic wireless mouse", Category: "electronics", Price: decimal.RequireFromString("25.00"), Stock: 50, IsActive: true},
		{Title: "Desk Lamp", Description: "Discontinued model", Category: "home", Price: decimal.RequireFromString("19.99"), Stock: 0, IsActive: false},
	}
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			log.Printf("Error seeding product %s: %v", products[i].Title, err)
		} else {
			log.Printf("Seeded product: %s (ID: %s)", products[i].Title, products[i].ID)
		}
	}
}
