package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platepay/platepay-api/internal/cache"
	"github.com/platepay/platepay-api/internal/config"
	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/handlers"
	"github.com/platepay/platepay-api/internal/images"
	"github.com/platepay/platepay-api/internal/mailer"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/outbox"
	"github.com/platepay/platepay-api/internal/repository"
	"github.com/platepay/platepay-api/internal/service"
	"github.com/platepay/platepay-api/pkg/kafka"
	"github.com/platepay/platepay-api/pkg/logger"
	"github.com/platepay/platepay-api/pkg/ratelimit"
	"github.com/platepay/platepay-api/pkg/retry"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	db         *database.Database

	orderRepo *repository.OrderRepository
	menuRepo  *repository.MenuRepository
	adminRepo *repository.AdminRepository
	dlqRepo   *repository.DeadLetterRepository

	orderService        *service.OrderService
	menuService         *service.MenuService
	authService         *service.AuthService
	confirmationService *service.ConfirmationService

	imageStore *images.S3Store
	menuCache  *cache.MenuCache

	outboxProcessor     *outbox.Processor
	deadLetterProcessor *outbox.DeadLetterProcessor
	kafkaProducer       *kafka.Producer
	kafkaConsumer       *kafka.Consumer

	publicLimiter *ratelimit.IPRateLimiter
}

// NewServer wires the full service: storage, mail transport, event
// processors and routes. Kafka, Redis and S3 are optional; the server runs
// degraded without them.
func NewServer(cfg *config.Config, logger logger.Logger) (*Server, error) {
	db, err := database.New(cfg, logger)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	orderRepo := repository.NewOrderRepository(db, logger)
	outboxRepo := repository.NewOutboxRepository(db, logger)
	dlqRepo := repository.NewDeadLetterRepository(db, logger)
	menuRepo := repository.NewMenuRepository(db, logger)
	adminRepo := repository.NewAdminRepository(db, logger)

	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP, logger)
	confirmationService := service.NewConfirmationService(orderRepo, smtpMailer, logger)
	orderService := service.NewOrderService(orderRepo, outboxRepo, confirmationService, logger)

	authService, err := service.NewAuthService(adminRepo, cfg.Auth, logger)

	if err != nil {
		return nil, err
	}

	var menuCache *cache.MenuCache

	if cfg.Redis.Addr != "" {
		menuCache = cache.NewMenuCache(cfg.Redis, logger)

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := menuCache.Ping(pingCtx); err != nil {
			logger.Warn("Redis unreachable, menu served without cache", "error", err)
			menuCache = nil
		}
		cancel()
	}

	menuService := service.NewMenuService(menuRepo, menuCache, logger)

	var imageStore *images.S3Store

	if cfg.S3.Bucket != "" {
		imageStore, err = images.NewS3Store(context.Background(), cfg.S3, logger)

		if err != nil {
			logger.Warn("Image store unavailable, uploads disabled", "error", err)
			imageStore = nil
		}
	}

	outboxProcessor := outbox.NewProcessor(outboxRepo, dlqRepo, outbox.ProcessorConfig{
		PollingInterval: 5 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
	}, logger)

	deadLetterProcessor := outbox.NewDeadLetterProcessor(dlqRepo, logger, &outbox.DeadLetterProcessorConfig{
		PollingInterval: 30 * time.Second,
		BatchSize:       5,
		MaxRetries:      5,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 1 * time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	})

	var (
		kafkaProducer *kafka.Producer
		kafkaConsumer *kafka.Consumer
		eventHandler  outbox.MessageHandler
	)

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Brokers[0] != "" {
		kafkaProducer, err = kafka.NewProducer(cfg.Kafka.Brokers, logger)

		if err != nil {
			logger.Warn("Kafka unreachable, order events logged locally", "error", err)
		}
	}

	if kafkaProducer != nil {
		eventHandler = outbox.NewKafkaHandler(kafkaProducer, cfg.Kafka.OrdersTopic, logger)

		kafkaConsumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, logger)

		if err != nil {
			logger.Warn("Failed to create Kafka consumer", "error", err)
			kafkaConsumer = nil
		}
	} else {
		eventHandler = outbox.NewLoggingHandler(logger)
	}

	for _, eventType := range []string{models.EventOrderCreated, models.EventOrderPaid, models.EventOrderStatusChanged} {
		outboxProcessor.RegisterHandler(eventType, eventHandler)
		deadLetterProcessor.RegisterHandler(eventType, eventHandler)
	}

	if kafkaConsumer != nil {
		orderEventsHandler := handlers.NewOrderEventsHandler(confirmationService, logger)
		kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, orderEventsHandler)
	}

	r := mux.NewRouter()

	server := &Server{
		config: cfg,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:                  db,
		orderRepo:           orderRepo,
		menuRepo:            menuRepo,
		adminRepo:           adminRepo,
		dlqRepo:             dlqRepo,
		orderService:        orderService,
		menuService:         menuService,
		authService:         authService,
		confirmationService: confirmationService,
		imageStore:          imageStore,
		menuCache:           menuCache,
		outboxProcessor:     outboxProcessor,
		deadLetterProcessor: deadLetterProcessor,
		kafkaProducer:       kafkaProducer,
		kafkaConsumer:       kafkaConsumer,
		publicLimiter:       ratelimit.NewIPRateLimiter(20, 10),
	}

	server.setupRoutes()

	confirmationService.Start()
	outboxProcessor.Start()
	deadLetterProcessor.Start()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Start(); err != nil {
			logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr, "env", s.config.Env)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its workers
func (s *Server) Shutdown(ctx context.Context) error {
	s.confirmationService.Stop()
	s.outboxProcessor.Stop()
	s.deadLetterProcessor.Stop()
	s.publicLimiter.Stop()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	if s.menuCache != nil {
		if err := s.menuCache.Close(); err != nil {
			s.logger.Error("Error closing Redis client", "error", err)
		}
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Error closing database connection", "error", err)
	}

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Machine-to-machine endpoints, authenticated by secret, not throttled
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)
	api.HandleFunc("/paystack-webhook", s.paystackWebhookHandler).Methods(http.MethodPost)
	api.HandleFunc("/email-automation", s.runEmailSweepHandler).Methods(http.MethodPost)
	api.HandleFunc("/email-automation", s.emailSweepStatusHandler).Methods(http.MethodGet)

	// Public storefront endpoints, rate limited per client IP
	public := s.router.PathPrefix("/api/v1").Subrouter()
	public.Use(s.rateLimitMiddleware)

	public.HandleFunc("/menu", s.getMenuHandler).Methods(http.MethodGet)
	public.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	public.HandleFunc("/track-order", s.trackOrderHandler).Methods(http.MethodGet)
	public.HandleFunc("/admin/signup", s.adminSignupHandler).Methods(http.MethodPost)
	public.HandleFunc("/admin/login", s.adminLoginHandler).Methods(http.MethodPost)

	// Admin console endpoints
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)

	admin.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/orders/resend", s.resendConfirmationHandler).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.updateOrderHandler).Methods(http.MethodPut)
	admin.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)

	admin.HandleFunc("/menu", s.createMenuItemHandler).Methods(http.MethodPost)
	admin.HandleFunc("/menu/image", s.uploadMenuImageHandler).Methods(http.MethodPost)
	admin.HandleFunc("/menu/{id}", s.updateMenuItemHandler).Methods(http.MethodPut)
	admin.HandleFunc("/menu/{id}", s.deleteMenuItemHandler).Methods(http.MethodDelete)

	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
}
