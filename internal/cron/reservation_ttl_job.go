package cron

import (
	"context"
	"fmt"

	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

type staleReservationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// NewReservationTTLJob builds the cron job that expires unfunded escrow
// reservations and returns their listings to the market.
func NewReservationTTLJob(logg *logger.Logger, escrow staleReservationExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	return &reservationTTLJob{logg: logg, escrow: escrow}, nil
}

type reservationTTLJob struct {
	logg   *logger.Logger
	escrow staleReservationExpirer
}

func (j *reservationTTLJob) Name() string { return "reservation-ttl" }

func (j *reservationTTLJob) Run(ctx context.Context) error {
	expired, err := j.escrow.ExpireStale(ctx)
	logCtx := j.logg.WithField(ctx, "expired", expired)
	if err != nil {
		// Partial progress still counts; the error carries the rows that
		// could not be expired this cycle.
		j.logg.Warn(logCtx, "reservation sweep finished with errors")
		return err
	}
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
