package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/notify"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env), zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(cfg.Observ.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database ready", zap.String("driver", cfg.Database.Driver))

	var (
		revoker     service.TokenRevoker
		idempotency service.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		revoker, idempotency = redisClient, redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set; logout and Idempotency-Key handling are disabled")
	}

	notifier := notify.NewNotifier(newSMSSender(cfg), newEmailSender(cfg))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		dispatcher         service.EventDispatcher
		notificationWorker *worker.NotificationWorker
		asyncDispatcher    *notify.AsyncDispatcher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		dispatcher = broker.NewEventPublisher(producer)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, notifier)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
		logger.Info("Order events routed through Kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		asyncDispatcher = notify.NewAsyncDispatcher(notifier, cfg.Notify.Workers, cfg.Notify.QueueSize, cfg.Notify.Timeout)
		dispatcher = asyncDispatcher
		logger.Info("Order events dispatched in-process", zap.Int("workers", cfg.Notify.Workers))
	}

	verifier := service.NewGoogleVerifier(context.Background(), cfg.Auth.GoogleClientID)
	customerService := service.NewCustomerService(db)
	authService := service.NewAuthService(db, verifier, revoker, service.AuthConfig{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	categoryService := service.NewCategoryService(db)
	productService := service.NewProductService(db)
	orderService := service.NewOrderService(db, dispatcher, idempotency)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(db, api.Services{
		Auth:       authService,
		Customers:  customerService,
		Categories: categoryService,
		Products:   productService,
		Orders:     orderService,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if asyncDispatcher != nil {
		if err := asyncDispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("Pending notifications abandoned", zap.Error(err))
		}
	}
	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func newSMSSender(cfg *config.Config) notify.SMSSender {
	if !cfg.Notify.SMSEnabled() {
		util.GetLogger().Warn("Africa's Talking not configured; SMS will only be logged")
		return notify.NewLogSender()
	}
	return notify.NewAfricasTalkingClient(
		cfg.Notify.AfricasTalkingBaseURL,
		cfg.Notify.AfricasTalkingUsername,
		cfg.Notify.AfricasTalkingAPIKey,
		cfg.Notify.AfricasTalkingSenderID,
	)
}

func newEmailSender(cfg *config.Config) notify.EmailSender {
	if !cfg.Notify.EmailEnabled() {
		util.GetLogger().Warn("ADMIN_EMAIL or EMAIL_FROM not set; admin email will only be logged")
		return notify.NewLogSender()
	}
	mailer, err := notify.NewSESMailer(context.Background(), cfg.Notify.AWSRegion, cfg.Notify.EmailFrom, cfg.Notify.AdminEmail)
	if err != nil {
		util.GetLogger().Error("Failed to configure SES; admin email will only be logged", zap.Error(err))
		return notify.NewLogSender()
	}
	return mailer
}
