package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

type fakeExpirer struct {
	expired int
	err     error
	calls   int
}

func (f *fakeExpirer) ExpireStale(ctx context.Context) (int, error) {
	f.calls++
	return f.expired, f.err
}

func TestReservationTTLJobRun(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	expirer := &fakeExpirer{expired: 3}

	job, err := NewReservationTTLJob(logg, expirer)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "reservation-ttl" {
		t.Fatalf("unexpected job name: %s", job.Name())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one sweep, got %d", expirer.calls)
	}
}

func TestReservationTTLJobPropagatesSweepErrors(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	sweepErr := errors.New("row stuck")
	job, err := NewReservationTTLJob(logg, &fakeExpirer{expired: 1, err: sweepErr})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); !errors.Is(err, sweepErr) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	first, err := NewReservationTTLJob(logg, &fakeExpirer{})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	registry := NewRegistry(nil, first)
	registry.Register(nil)

	jobs := registry.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Name() != "reservation-ttl" {
		t.Fatalf("unexpected job: %s", jobs[0].Name())
	}
}
