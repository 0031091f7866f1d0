package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"acara/internal/handlers"
	"acara/internal/models"
	"acara/internal/repositories"
	"acara/internal/services"
	"acara/internal/storage"
	"acara/pkg/logger"
	"acara/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DB_DSN", "acara.db")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("IMAGE_BACKEND", "local")
	viper.SetDefault("IMAGE_DIR", "public/images")
	viper.SetDefault("BASE_URL", "/images")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_BUCKET", "acara-images")
	viper.SetDefault("S3_ACCESS_KEY", "")
	viper.SetDefault("S3_SECRET_KEY", "")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_PRETTY", false)
	viper.AutomaticEnv()

	log := logger.Init(logger.Options{
		Level:  viper.GetString("LOG_LEVEL"),
		Pretty: viper.GetBool("LOG_PRETTY"),
	})

	jwtSecret := viper.GetString("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	// --- Repositories ---
	userRepo, eventRepo, err := buildRepositories()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// --- Image store ---
	images, err := buildImageStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image store")
	}

	// --- Notification queue (optional) ---
	var mqClient *rabbitmq.Client
	if url := viper.GetString("RABBITMQ_URL"); url != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: url})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize RabbitMQ client")
		}
		defer mqClient.Close()
		log.Info().Str("queue", rabbitmq.NotificationQueue).Msg("RabbitMQ connected")
	}

	// --- Services ---
	authService := services.NewAuthService(userRepo, jwtSecret)
	var publisher services.NotificationPublisher
	if mqClient != nil {
		publisher = mqClient
	}
	eventService := services.NewEventService(eventRepo, images, publisher)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	eventHandler := handlers.NewEventHandler(eventService, authService, images)

	// --- Fiber app ---
	// Body limit sized above the image ceiling so oversize uploads are
	// rejected by the image store's own check, not the transport.
	app := fiber.New(fiber.Config{BodyLimit: storage.MaxImageSize + 1<<20})
	app.Use(fiberlogger.New())

	if viper.GetString("IMAGE_BACKEND") == "local" {
		app.Static(viper.GetString("BASE_URL"), viper.GetString("IMAGE_DIR"))
	}

	authHandler.RegisterRoutes(app)
	eventHandler.RegisterRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Notification consumer ---
	// Deployments without a dedicated consumer still get the queue
	// drained and logged, mirroring what downstream services see.
	if mqClient != nil {
		err := mqClient.Consume(func(msg amqp.Delivery) error {
			log.Info().
				Str("type", msg.Type).
				Bytes("body", msg.Body).
				Msg("event notification")
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to start notification consumer")
		}
	}

	// --- Start HTTP server ---
	appPort := viper.GetString("APP_PORT")
	log.Info().Str("port", appPort).Msg("starting server")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-quit
	log.Info().Msg("shutting down server")

	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("server stopped")
}

// buildRepositories opens the configured backend: gorm over sqlite or
// postgres, or plain in-memory stores for a database-less run.
func buildRepositories() (repositories.UserRepository, repositories.EventRepository, error) {
	driver := viper.GetString("DB_DRIVER")
	dsn := viper.GetString("DB_DSN")

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "memory":
		return repositories.NewMemoryUserRepository(), repositories.NewMemoryEventRepository(), nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Event{}); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repositories.NewGORMUserRepository(db), repositories.NewGORMEventRepository(db), nil
}

// buildImageStore selects the configured image backend.
func buildImageStore() (storage.ImageStore, error) {
	switch backend := viper.GetString("IMAGE_BACKEND"); backend {
	case "local":
		return storage.NewLocalStore(viper.GetString("IMAGE_DIR"), viper.GetString("BASE_URL"))
	case "s3":
		return storage.NewS3Store(context.Background(), storage.S3Config{
			Endpoint:  viper.GetString("S3_ENDPOINT"),
			Region:    viper.GetString("S3_REGION"),
			Bucket:    viper.GetString("S3_BUCKET"),
			AccessKey: viper.GetString("S3_ACCESS_KEY"),
			SecretKey: viper.GetString("S3_SECRET_KEY"),
		})
	default:
		return nil, fmt.Errorf("unknown IMAGE_BACKEND %q", backend)
	}
}
