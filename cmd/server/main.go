package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"mobilespo/internal/config"
	"mobilespo/internal/crypto"
	"mobilespo/internal/database"
	"mobilespo/internal/emergency"
	"mobilespo/internal/handlers"
	"mobilespo/internal/jobs"
	"mobilespo/internal/logging"
	"mobilespo/internal/medical"
	"mobilespo/internal/middleware"
	"mobilespo/internal/models"
	"mobilespo/internal/preflight"
	"mobilespo/internal/services"
	"mobilespo/internal/ussd"
	"mobilespo/pkg/auth"
)

const serverVersion = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Mobile Spo Server...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s, USSD store: %s)",
		cfg.Port, cfg.Environment, cfg.USSDSessionStore)

	// JWT authentication
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		var err error
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("✅ JWT authentication initialized")
	} else if cfg.IsProduction() {
		log.Fatal("❌ CRITICAL SECURITY ERROR: JWT_SECRET is required in production")
	} else {
		log.Println("⚠️  JWT_SECRET not set - authenticated routes run as a development user")
	}

	// MongoDB (optional - accounts, conversation history and audit log)
	var mongoDB *database.MongoDB
	var userService *services.UserService
	var conversationService *services.ConversationService

	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (accounts and history disabled)", err)
		} else {
			defer mongoDB.Close(context.Background())

			initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mongoDB.Initialize(initCtx); err != nil {
				log.Printf("⚠️ Failed to initialize MongoDB indexes: %v", err)
			}
			cancel()

			var encryptionService *crypto.EncryptionService
			if cfg.EncryptionMasterKey != "" {
				encryptionService, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
				if err != nil {
					log.Fatalf("❌ Failed to initialize encryption: %v", err)
				}
				log.Println("✅ Encryption service initialized")
			} else if cfg.IsProduction() {
				log.Fatal("❌ CRITICAL SECURITY ERROR: ENCRYPTION_MASTER_KEY is required in production when MongoDB is enabled. Generate with: openssl rand -hex 32")
			}

			userService = services.NewUserService(mongoDB)
			conversationService = services.NewConversationService(mongoDB, encryptionService)
			log.Println("✅ User and conversation services initialized")
		}
	} else {
		log.Println("⚠️ MONGODB_URI not set - accounts and conversation history disabled")
	}

	auditService := services.NewAuditService(mongoDB, cfg.NotifyTimeout)

	// Redis (optional - shared USSD sessions and cross-instance realtime events)
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (running single-instance)", err)
		} else {
			defer redisService.Close()
			pubsubService = services.NewPubSubService(redisService, uuid.New().String())
		}
	}

	// Realtime notifications
	connManager := services.NewConnectionManager()
	realtimeSender := services.NewRealtimeSender(connManager, pubsubService)
	if pubsubService != nil {
		pubsubService.Subscribe("user:*:events", realtimeSender.DeliverRemote)
		if err := pubsubService.Start(); err != nil {
			log.Printf("⚠️ Failed to start PubSub: %v (realtime events stay local)", err)
		}
	}

	notificationService := services.NewNotificationService()
	notificationService.Register(models.ChannelRealtime, realtimeSender)

	// SMS via Twilio, or the log stream when credentials are absent
	var smsClient services.SMSClient = services.LogSMSClient{}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		twilioClient, err := services.NewTwilioSMSClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		if err != nil {
			log.Printf("⚠️ Failed to initialize Twilio: %v (SMS logged only)", err)
		} else {
			smsClient = twilioClient
			log.Println("✅ Twilio SMS channel initialized")
		}
	} else {
		log.Println("⚠️  Twilio credentials not set - emergency SMS will be logged only")
	}
	notificationService.Register(models.ChannelSMS, services.NewSMSSender(smsClient, cfg.SMSRatePerMinute))

	// Care-team event bus
	engineOpts := []emergency.EngineOption{
		emergency.WithObserver(func(level models.EmergencyLevel, channel models.NotificationChannel) {
			services.GetMetrics().RecordEmergency(level, channel)
		}),
	}
	if cfg.NATSURL != "" {
		eventBus, err := services.NewEventBusSender(cfg.NATSURL, cfg.NATSEmergencySubject)
		if err != nil {
			log.Printf("⚠️ Failed to connect to NATS: %v (care-team events disabled)", err)
		} else {
			defer eventBus.Close()
			notificationService.Register(models.ChannelEventBus, eventBus)
			engineOpts = append(engineOpts, emergency.WithFanout(models.ChannelEventBus))
		}
	}

	engine := emergency.NewEngine(cfg, notificationService, auditService, engineOpts...)
	resources := engine.Resources()

	// Pre-flight checks
	checker := preflight.NewChecker(cfg)
	if mongoDB != nil {
		checker.AddDependency("MongoDB", mongoDB)
	}
	if redisService != nil {
		checker.AddDependency("Redis", redisService)
	}
	if results := checker.RunAll(context.Background()); preflight.HasFailures(results) {
		if cfg.IsProduction() {
			log.Fatal("❌ Pre-flight checks failed")
		}
		log.Println("⚠️  Pre-flight checks failed - continuing in development mode")
	}

	// USSD dialog
	locales, err := ussd.LoadLocales()
	if err != nil {
		log.Fatalf("❌ Failed to load USSD locales: %v", err)
	}

	var sessionStore ussd.Store
	switch {
	case cfg.USSDSessionStore == "redis" && redisService != nil:
		sessionStore = ussd.NewRedisStore(redisService.Client(), cfg.USSDSessionTimeout)
		log.Println("✅ USSD sessions stored in Redis")
	case cfg.USSDSessionStore == "redis":
		log.Println("⚠️  USSD_SESSION_STORE=redis but Redis is unavailable - using in-memory sessions")
		sessionStore = ussd.NewMemoryStore(cfg.USSDSessionTimeout)
	default:
		sessionStore = ussd.NewMemoryStore(cfg.USSDSessionTimeout)
	}

	assistant := medical.NewAssistant(cfg.MaxConversationLength)
	machine := ussd.NewMachine(sessionStore, locales, assistant, engine, resources)

	if cfg.MetricsEnabled {
		services.InitMetrics(connManager, func() int {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			stats, err := sessionStore.Stats(ctx)
			if err != nil {
				return 0
			}
			return stats.Active
		})
	}

	// Background jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("ussd_session_sweep", jobs.NewUSSDSessionSweepJob(sessionStore, cfg.USSDSweepInterval))
	jobScheduler.Start()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Mobile Spo v" + serverVersion,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	if cfg.MetricsEnabled {
		prometheus := fiberprometheus.New("mobilespo")
		prometheus.RegisterAt(app, "/metrics")
		app.Use(prometheus.Middleware)
		log.Println("📊 Prometheus metrics endpoint enabled at /metrics")
	}

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Public=%d/min, Auth=%d/min, WS=%d/min, USSD=%d/%v",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.PublicReadMax,
		rateLimitConfig.AuthenticatedMax,
		rateLimitConfig.WebSocketMax,
		cfg.USSDRateLimit,
		cfg.USSDRateWindow,
	)

	allowedOrigins := cfg.AllowedOriginList()
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-API-Key",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Interface variables stay nil (not typed nil) when MongoDB is off
	var (
		accounts      handlers.AccountStore
		profiles      handlers.HealthProfileStore
		userLookup    handlers.UserLookup
		conversations handlers.ConversationStore
	)
	if userService != nil {
		accounts, profiles, userLookup = userService, userService, userService
	}
	if conversationService != nil {
		conversations = conversationService
	}

	healthHandler := handlers.NewHealthHandler(connManager, serverVersion, cfg.Environment)
	ussdHandler := handlers.NewUSSDHandler(machine, sessionStore, cfg.IsProduction())
	chatHandler := handlers.NewChatHandler(assistant, engine, conversations, userLookup, auditService, resources, cfg.MaxConversationLength)
	authHandler := handlers.NewAuthHandler(accounts, jwtAuth, auditService)
	healthProfileHandler := handlers.NewHealthProfileHandler(profiles, auditService)
	emergencyHandler := handlers.NewEmergencyHandler(resources)
	wsHandler := handlers.NewNotificationWebSocketHandler(connManager)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api/" + cfg.APIVersion)
	requireAuth := middleware.LocalAuthMiddleware(jwtAuth, cfg.Environment)
	userLimiter := middleware.AuthenticatedRateLimiter(rateLimitConfig)

	// USSD gateway (telecom providers)
	ussdGroup := api.Group("/ussd")
	providerAuth := middleware.USSDProviderAuth(cfg.USSDAPIKey, cfg.IsProduction())
	ussdGroup.Post("/gateway", providerAuth, middleware.USSDRateLimiter(cfg.USSDRateLimit, cfg.USSDRateWindow), ussdHandler.Gateway)
	ussdGroup.Post("/webhook", providerAuth, ussdHandler.Webhook)
	ussdGroup.Get("/status", middleware.PublicReadRateLimiter(rateLimitConfig), ussdHandler.Status)
	ussdGroup.Get("/analytics", requireAuth, ussdHandler.Analytics)
	ussdGroup.Post("/test", ussdHandler.Test)

	// Authentication
	authGroup := api.Group("/auth")
	authAttempts := middleware.AuthAttemptRateLimiter(rateLimitConfig)
	authGroup.Post("/register", authAttempts, authHandler.Register)
	authGroup.Post("/login", authAttempts, authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/me", requireAuth, authHandler.Me)

	// Health chat
	chatGroup := api.Group("/chat")
	chatGroup.Post("/test", middleware.PublicReadRateLimiter(rateLimitConfig), chatHandler.Test)
	chatGroup.Post("/message", requireAuth, userLimiter, chatHandler.SendMessage)
	chatGroup.Get("/conversations", requireAuth, userLimiter, chatHandler.ListConversations)
	chatGroup.Get("/conversation/:id", requireAuth, userLimiter, chatHandler.GetConversation)
	chatGroup.Delete("/conversation/:id", requireAuth, userLimiter, chatHandler.DeleteConversation)
	chatGroup.Post("/feedback", requireAuth, userLimiter, chatHandler.Feedback)

	// Health profile
	api.Get("/health/profile", requireAuth, userLimiter, healthProfileHandler.Get)
	api.Put("/health/profile", requireAuth, userLimiter, healthProfileHandler.Update)

	// Emergency resources (public)
	api.Get("/emergency/resources", middleware.PublicReadRateLimiter(rateLimitConfig), emergencyHandler.Resources)

	// Realtime notifications
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			c.Locals("client_ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/notifications", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Use("/ws/notifications", requireAuth)
	app.Get("/ws/notifications", websocket.New(wsHandler.Handle, websocket.Config{
		Origins: allowedOrigins,
	}))

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📞 USSD gateway: http://localhost:%s/api/%s/ussd/gateway", cfg.Port, cfg.APIVersion)
	log.Printf("🔌 Notifications: ws://localhost:%s/ws/notifications", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if pubsubService != nil {
			if err := pubsubService.Stop(); err != nil {
				log.Printf("⚠️ Error stopping PubSub: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
