package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinkar-mx/clinkar-backend/api/routes"
	"github.com/clinkar-mx/clinkar-backend/internal/escrow"
	"github.com/clinkar-mx/clinkar-backend/internal/listings"
	"github.com/clinkar-mx/clinkar-backend/internal/notifications"
	"github.com/clinkar-mx/clinkar-backend/internal/payments"
	"github.com/clinkar-mx/clinkar-backend/internal/webhooks"
	speiwebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/spei"
	stripewebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/stripe"
	"github.com/clinkar-mx/clinkar-backend/pkg/config"
	"github.com/clinkar-mx/clinkar-backend/pkg/db"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
	"github.com/clinkar-mx/clinkar-backend/pkg/metrics"
	"github.com/clinkar-mx/clinkar-backend/pkg/migrate"
	"github.com/clinkar-mx/clinkar-backend/pkg/redis"
	"github.com/clinkar-mx/clinkar-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateways := []payments.Gateway{payments.NewSPEIGateway(cfg.App.BaseURL)}

	var stripeClient *stripe.Client
	if cfg.FeatureFlags.SimulatePayment {
		logg.Warn(context.Background(), "payment simulation enabled, stripe checkout disabled")
	} else {
		stripeClient, err = stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
		stripeGateway, err := payments.NewStripeGateway(stripeClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe gateway", err)
			os.Exit(1)
		}
		gateways = append(gateways, stripeGateway)
	}

	listingsRepo := listings.NewRepository(dbClient.DB())
	listingsService, err := listings.NewService(listingsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create listings service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	escrowMetrics := metrics.NewEscrowMetrics(prometheus.DefaultRegisterer)
	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Tx:            dbClient,
		Repo:          escrow.NewRepository(dbClient.DB()),
		Vehicles:      listingsRepo,
		Notifier:      notificationsService,
		Gateways:      gateways,
		Logger:        logg,
		EscrowMetrics: escrowMetrics,
		Settings: escrow.Settings{
			BuyerCommission: cfg.Escrow.BuyerCommission(),
			ReservationTTL:  cfg.Escrow.ReservationTTL,
			BaseURL:         cfg.App.BaseURL,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	stripeWebhookService, err := stripewebhook.NewService(escrowService)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	speiWebhookService, err := speiwebhook.NewService(escrowService)
	if err != nil {
		logg.Error(context.Background(), "failed to create spei webhook service", err)
		os.Exit(1)
	}

	stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Escrow.WebhookEventTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}
	speiGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Escrow.WebhookEventTTL, "spei-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create spei webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DBPinger:             dbClient,
			RedisPinger:          redisClient,
			ListingsService:      listingsService,
			EscrowService:        escrowService,
			NotificationsService: notificationsService,
			StripeClient:         stripeClient,
			StripeWebhookService: stripeWebhookService,
			SPEIWebhookService:   speiWebhookService,
			StripeWebhookGuard:   stripeGuard,
			SPEIWebhookGuard:     speiGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
