package app

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chathub/internal/db"
	"chathub/internal/engine"
	"chathub/internal/handlers"
	"chathub/internal/models"
	"chathub/internal/push"
	"chathub/internal/registry"
	"chathub/internal/services"
	"chathub/internal/store"
	"chathub/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func Run() {
	// Load Env
	if err := utils.LoadEnv(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Init DB
	connString := utils.GetEnv("DATABASE_URL", "")
	if connString == "" {
		// Fallback to individual vars
		connString = "postgres://" + utils.GetEnv("POSTGRES_USER", "postgres") + ":" +
			utils.GetEnv("POSTGRES_PASSWORD", "postgres") + "@" +
			utils.GetEnv("POSTGRES_HOST", "localhost") + ":" +
			utils.GetEnv("POSTGRES_PORT", "5432") + "/" +
			utils.GetEnv("POSTGRES_DB", "chathub") + "?sslmode=disable"
	}

	if err := db.InitDB(connString); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	// Services and realtime core
	userService := services.NewUserService()
	rooms := store.NewRoomStore()
	messages := store.NewMessageStore()
	notifs := store.NewNotificationStore()

	reg := registry.NewMemory()

	dispatcher := &push.Dispatcher{
		Store: notifs,
		Provider: &push.WebPush{
			Subscriber:      utils.GetEnv("VAPID_SUBSCRIBER", "mailto:admin@chathub.local"),
			VAPIDPublicKey:  utils.GetEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: utils.GetEnv("VAPID_PRIVATE_KEY", ""),
			TTL:             utils.GetEnvInt("PUSH_TTL", 30),
		},
		Title: utils.GetEnv("APP_TITLE", "Chat App"),
		Icon:  utils.GetEnv("APP_ICON", ""),
	}

	eng := &engine.Engine{
		Registry:   reg,
		Members:    rooms,
		Messages:   messages,
		Notifs:     notifs,
		Dispatcher: dispatcher,
		SiteURL:    utils.GetEnv("SITE_URL", ""),
	}

	// Fiber App. ReadTimeout bounds the websocket handshake: an
	// unauthenticated connection that stalls is forcibly closed.
	app := fiber.New(fiber.Config{
		ReadTimeout: utils.GetEnvSeconds("HANDSHAKE_TIMEOUT_SECONDS", 10*time.Second),
	})

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Routes
	api := app.Group("/api")

	// Public Routes
	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrUserExists) {
				return c.Status(400).JSON(fiber.Map{"error": "email already registered"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(user)
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	// Refresh token endpoint
	api.Post("/refresh", func(c *fiber.Ctx) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if body.RefreshToken == "" {
			return c.Status(400).JSON(fiber.Map{"error": "refresh_token required"})
		}

		identity, err := services.ValidateRefreshToken(body.RefreshToken)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid refresh token"})
		}

		access, err := services.GenerateJWT(identity.UserID, identity.Name)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to generate access token"})
		}
		refresh, err := services.GenerateRefreshToken(identity.UserID, identity.Name)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to generate refresh token"})
		}

		return c.JSON(fiber.Map{
			"access_token":  access,
			"refresh_token": refresh,
		})
	})

	// Protected Routes
	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware)

	// Rooms
	protected.Post("/rooms", handlers.CreateRoomHandler(rooms))
	protected.Get("/rooms", handlers.ListRoomsHandler(rooms))
	protected.Get("/rooms/user/:user_id", handlers.ListUserRoomsHandler(rooms))
	protected.Get("/rooms/:room_id", handlers.GetRoomHandler(rooms))
	protected.Patch("/rooms/:room_id", handlers.UpdateRoomHandler(rooms))
	protected.Delete("/rooms/:room_id", handlers.DeleteRoomHandler(rooms))
	protected.Get("/rooms/:room_id/requests", handlers.ListRoomRequestsHandler(rooms))

	// Messages
	protected.Get("/rooms/:room_id/messages", handlers.ListRoomMessagesHandler(messages))
	protected.Get("/rooms/:room_id/unread", handlers.UnreadCountHandler(messages))

	// Notifications
	protected.Get("/notifications", handlers.ListNotificationsHandler(notifs))
	protected.Post("/notifications/subscribe", handlers.SubscribeHandler(notifs))

	// Users
	protected.Get("/users", handlers.ListUsersHandler(userService, reg))

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	// Note: Middleware order matters. AuthMiddleware checks token.
	// WSUpgradeMiddleware checks if it's a WS request.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(eng, reg))

	// Start Server
	port := utils.GetEnv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	log.Println("Gracefully shutting down...")
	_ = app.Shutdown()
	log.Println("Server shutdown complete")
}
