package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-pos/internal/cart"
	"github.com/sakashimaa/go-pos/internal/category"
	"github.com/sakashimaa/go-pos/internal/clients"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/sakashimaa/go-pos/internal/service"
	transport "github.com/sakashimaa/go-pos/internal/transport/http"
	"github.com/sakashimaa/go-pos/internal/transport/http/handler"
	"github.com/sakashimaa/go-pos/pkg/config"
	"github.com/sakashimaa/go-pos/pkg/db"
	"github.com/sakashimaa/go-pos/pkg/kafka"
	outboxRepository "github.com/sakashimaa/go-pos/pkg/outbox/repository"
	outboxWorker "github.com/sakashimaa/go-pos/pkg/outbox/worker"
	"github.com/sakashimaa/go-pos/pkg/utils"
	"github.com/shopspring/decimal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "pos-service")
	if err != nil {
		log.Fatalf("Failed to init trace: %v", err)
	}

	loggerCfg := config.LoggerConfig{
		Level: "info",
		Env:   cfg.Env,
	}

	logger, err := config.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("error syncing logger: %v", err)
		}
	}()

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Error connecting to postgres: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("error closing redis client: %v", err)
		}
	}()

	taxRate, err := decimal.NewFromString(cfg.Sales.TaxRate)
	if err != nil {
		log.Fatalf("Invalid tax rate %q: %v", cfg.Sales.TaxRate, err)
	}

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	categoryRepo := repository.NewCategoryRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	calc := cart.NewCalculator(taxRate)

	catalog := service.NewCatalogService(productRepo, logger)
	cachedCatalog := service.NewCachedCatalogService(catalog, redisClient, cfg.Redis.CacheTTL)

	var invalidator service.StockCacheInvalidator
	if cc, ok := cachedCatalog.(service.StockCacheInvalidator); ok {
		invalidator = cc
	}

	terminal := service.NewTerminalService(cachedCatalog, calc, logger)

	var directory clients.CustomerDirectory
	if cfg.Services.AccountsURL != "" {
		directory = clients.NewAccountsClient(cfg.Services.AccountsURL, logger)
	}

	checkout := service.NewCheckoutService(
		pool,
		productRepo,
		orderRepo,
		outboxRepo,
		terminal,
		calc,
		directory,
		invalidator,
		cfg.Kafka.Topic,
		logger,
	)

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("Error creating kafka producer: %v", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("error closing kafka producer: %v", err)
		}
	}()

	processor := outboxWorker.NewOutboxProcessor(pool, outboxRepo, producer, logger)
	go processor.Start(ctx)

	app := fiber.New()

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        50,
		Expiration: 5 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	handlers := &transport.Handlers{
		Terminal: handler.NewTerminalHandler(terminal, logger),
		Product:  handler.NewProductHandler(cachedCatalog, logger),
		Checkout: handler.NewCheckoutHandler(checkout, logger),
		Category: handler.NewCategoryHandler(categoryRepo, category.NewResolver(categoryRepo), logger),
	}

	transport.RegisterRoutes(app, handlers)

	logger.Info("POS service started!")

	go func() {
		log.Println("HTTP Service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownContext); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	} else {
		log.Println("HTTP App stopped gracefully")
	}

	if err := tp.Shutdown(shutdownContext); err != nil {
		log.Printf("Error shutting down telemetry: %v\n", err)
	} else {
		log.Println("Telemetry stopped correctly")
	}
}
