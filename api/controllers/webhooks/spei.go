package webhooks

import (
	"context"
	"net/http"

	"github.com/clinkar-mx/clinkar-backend/api/responses"
	speiwebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/spei"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

type SPEIWebhookService interface {
	HandleEvent(ctx context.Context, event *speiwebhook.Event) error
}

// SPEIWebhook routes simulated SPEI transfer notifications.
func SPEIWebhook(svc SPEIWebhookService, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		event, err := speiwebhook.ParseEvent(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "event_id", event.EventID), "spei event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
