package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventpass-backend/config"
	"eventpass-backend/db"
	"eventpass-backend/gateway/paystack"
	"eventpass-backend/handlers"
	"eventpass-backend/notify"
	"eventpass-backend/ratelimit"
	"eventpass-backend/repositories"
	"eventpass-backend/services"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
)

func main() {
	cfg := config.LoadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, db.Options{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		TxTimeout:       cfg.DBTxTimeout,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.AutoMigrate {
		if err := database.ApplySchema(ctx); err != nil {
			return err
		}
		logger.Info("schema applied", "driver", cfg.DBDriver)
	}

	// Initialize repositories
	eventRepo := repositories.NewEventRepository(database)
	availabilityRepo := repositories.NewAvailabilityRepository(database)
	inventoryRepo := repositories.NewInventoryRepository(database)
	ticketTypeRepo := repositories.NewTicketTypeRepository(database)
	ticketRepo := repositories.NewTicketRepository(database)
	paymentRepo := repositories.NewPaymentRepository(database)
	payoutRepo := repositories.NewPayoutRepository(database)
	userRepo := repositories.NewUserRepository(database)

	// External collaborators
	gatewayClient := paystack.NewClient(paystack.Options{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		Timeout:   cfg.GatewayTimeout,
	})

	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, cfg.NotifyTimeout, logger)

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// Initialize services
	ledger := services.NewInventoryLedger(inventoryRepo)
	issuer := services.NewTicketIssuer(database, ticketRepo, ticketTypeRepo, userRepo, ledger)
	reconciler := services.NewReconciler(database, paymentRepo, ticketRepo, eventRepo, ticketTypeRepo, issuer, gatewayClient, dispatcher, logger)
	checkoutService := services.NewCheckoutService(eventRepo, ticketTypeRepo, paymentRepo, ledger, gatewayClient, services.CheckoutConfig{
		Currency:        cfg.Currency,
		PlatformFeeRate: cfg.PlatformFeeRate,
		CallbackURL:     cfg.PaystackCallbackURL,
	}, logger)
	bookingService := services.NewBookingService(eventRepo, ticketTypeRepo, issuer, dispatcher, logger)
	ticketService := services.NewTicketService(database, ticketRepo, eventRepo, inventoryRepo, ledger)
	eventService := services.NewEventService(eventRepo, ticketTypeRepo, availabilityRepo)
	payoutService := services.NewPayoutService(database, payoutRepo, eventRepo, logger)

	// Initialize handlers
	api := &handlers.API{
		Events:   handlers.NewEventHandler(eventService, logger),
		Payments: handlers.NewPaymentHandler(checkoutService, reconciler, gatewayClient, logger),
		Bookings: handlers.NewBookingHandler(bookingService, ticketService, logger),
		Payouts:  handlers.NewPayoutHandler(payoutService, logger),
		Admin:    handlers.NewAdminHandler(reconciler, eventService, logger),
	}
	router := handlers.NewRouter(api, handlers.RouterOptions{
		JWTSecret: []byte(cfg.JWTSecret),
		Limiter:   limiter,
		Metrics:   promhttp.Handler(),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let in-flight confirmations finish before the sender is closed.
	dispatcher.Wait()
	return nil
}

func newSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, func(), error) {
	switch cfg.NotifyBackend {
	case "smtp":
		return notify.NewSMTPSender(smtpConfig(cfg)), func() {}, nil
	case "amqp":
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if _, err := notify.DeclareQueue(ch, cfg.NotifyQueue); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, err
		}
		logger.Info("confirmations published to queue", "queue", cfg.NotifyQueue)
		return notify.NewAMQPSender(ch, cfg.NotifyQueue), func() {
			ch.Close()
			conn.Close()
		}, nil
	default:
		return &notify.LogSender{Logger: logger}, func() {}, nil
	}
}

func smtpConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}
}

// newLimiter prefers the shared Redis counter. The in-process limiter is
// only correct for a single instance.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, rate limits are per instance")
		local := ratelimit.NewLocalLimiter(cfg.RateLimitPerMinute, 10*time.Minute)
		return local, func() { local.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, limiter will fail open", "error", err)
	}
	return ratelimit.NewRedisLimiter(client, cfg.RateLimitPerMinute, time.Minute), func() { client.Close() }, nil
}
