package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinkar-mx/clinkar-backend/api/controllers"
	webhookcontrollers "github.com/clinkar-mx/clinkar-backend/api/controllers/webhooks"
	"github.com/clinkar-mx/clinkar-backend/api/middleware"
	"github.com/clinkar-mx/clinkar-backend/internal/escrow"
	"github.com/clinkar-mx/clinkar-backend/internal/listings"
	"github.com/clinkar-mx/clinkar-backend/internal/notifications"
	"github.com/clinkar-mx/clinkar-backend/internal/webhooks"
	speiwebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/spei"
	stripewebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/stripe"
	"github.com/clinkar-mx/clinkar-backend/pkg/config"
	"github.com/clinkar-mx/clinkar-backend/pkg/db"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
	"github.com/clinkar-mx/clinkar-backend/pkg/redis"
	"github.com/clinkar-mx/clinkar-backend/pkg/stripe"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DBPinger             db.Pinger
	RedisPinger          redis.Pinger
	ListingsService      listings.Service
	EscrowService        escrow.Service
	NotificationsService notifications.Service
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	SPEIWebhookService   *speiwebhook.Service
	StripeWebhookGuard   *webhooks.IdempotencyGuard
	SPEIWebhookGuard     *webhooks.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookService, params.StripeClient, params.StripeWebhookGuard, logg))
		r.Post("/spei", webhookcontrollers.SPEIWebhook(params.SPEIWebhookService, params.SPEIWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/listings", controllers.ListListings(params.ListingsService, logg))
		r.Get("/listings/{vehicleId}", controllers.GetListing(params.ListingsService, logg))

		// The QR scan is a plain GET; POST is kept for API clients.
		r.Get("/verify/handover/{token}", controllers.VerifyHandover(params.EscrowService, logg))
		r.Post("/verify/handover/{token}", controllers.VerifyHandover(params.EscrowService, logg))

		r.Group(func(r chi.Router) {
			// Demo environments can run the buyer flow without minting tokens.
			if cfg.App.IsDev() && cfg.Escrow.DemoBuyerID != "" {
				r.Use(middleware.DemoIdentity(cfg.Escrow.DemoBuyerID))
			}
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Post("/listings", controllers.CreateListing(params.ListingsService, logg))
			r.Post("/checkout", controllers.InitiateCheckout(params.EscrowService, logg))
			r.Get("/transactions/{transactionId}", controllers.GetTransaction(params.EscrowService, logg))
			r.Post("/transactions/{transactionId}/handover", controllers.IssueHandoverToken(params.EscrowService, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(params.NotificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(params.NotificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(params.NotificationsService, logg))
			})
		})
	})

	return r
}
