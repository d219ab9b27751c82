package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tabletap/internal/broadcast"
	"tabletap/internal/config"
	"tabletap/internal/database"
	"tabletap/internal/handler"
	"tabletap/internal/mw"
	"tabletap/internal/provider"
	"tabletap/internal/service"
	"tabletap/internal/worker"
)

func main() {
	cfg := config.New()

	db, err := database.NewDB(cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(context.Background(), db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	// Providers
	stripe := provider.NewStripeProvider(cfg.StripeAPIURL, cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	paytabs := provider.NewPayTabsProvider(cfg.PayTabsAPIURL, cfg.PayTabsProfileID, cfg.PayTabsServerKey, cfg.PayTabsCallback)
	cash := provider.NewCashProvider()
	selector := provider.NewSelector(stripe, paytabs, cash)

	// Broadcaster
	var broadcaster broadcast.Broadcaster
	if cfg.AMQPURL != "" {
		amqpBroadcaster, err := broadcast.NewAMQPBroadcaster(cfg.AMQPURL)
		if err != nil {
			slog.Error("failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		defer amqpBroadcaster.Close()
		broadcaster = amqpBroadcaster
	} else {
		slog.Warn("no AMQP URL configured, using in-process hub")
		broadcaster = broadcast.NewMemoryHub()
	}

	// Collaborators
	var mailer service.StatusMailer
	if cfg.MailerURL != "" {
		mailer = service.NewMailerClient(cfg.MailerURL)
	}

	// Services
	authSvc := service.NewAuthService(db, cfg.JWTSecret)
	orderSvc := service.NewOrderService(db, broadcaster, mailer)
	paymentSvc := service.NewPaymentService(db, selector, orderSvc)
	reconcileSvc := service.NewReconcileService(selector, orderSvc)

	// Worker
	sweeper := worker.NewPaymentSweeper(orderSvc, paymentSvc, selector)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/staff/register", handler.RegisterHandler(authSvc))
	r.Post("/api/staff/login", handler.LoginHandler(authSvc))
	r.Post("/api/tables/session", handler.TableSessionHandler(authSvc))
	r.Post("/api/orders", handler.CreateOrderHandler(orderSvc))
	r.Post("/api/payments/intents", handler.CreateIntentHandler(paymentSvc))
	r.Post("/api/realtime/auth", handler.RealtimeAuthHandler(authSvc))
	r.Post("/webhooks/{provider}", handler.WebhookHandler(reconcileSvc, selector))

	// Staff routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(authSvc))

		r.Get("/api/orders", handler.ListOrdersHandler(orderSvc))
		r.Patch("/api/orders/{orderID}/status", handler.UpdateStatusHandler(orderSvc))
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop worker
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
