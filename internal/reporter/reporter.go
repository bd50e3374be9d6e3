package reporter

import (
	"context"
	"log/slog"

	"github.com/datapult/insightsync/internal/models"
)

type errorStore interface {
	UpsertError(ctx context.Context, scope, message string) error
	ClearError(ctx context.Context, scope string) error
}

type signalPublisher interface {
	Publish(ctx context.Context, sig models.SyncSignal) error
}

// Reporter persists terminal error/success state and emits a status
// notification. It never returns an error: reporting failures are swallowed
// and logged so they cannot mask the underlying synchronization result.
type Reporter struct {
	errors  errorStore
	signals signalPublisher
	log     *slog.Logger
}

func New(errors errorStore, signals signalPublisher, log *slog.Logger) *Reporter {
	return &Reporter{
		errors:  errors,
		signals: signals,
		log:     log,
	}
}

func (r *Reporter) Success(ctx context.Context, target, phase string) {
	if err := r.errors.ClearError(ctx, target); err != nil {
		r.log.ErrorContext(ctx, "failed to clear error record",
			"target", target, "error", err)
	}

	r.publish(ctx, models.SyncSignal{ //nolint:exhaustruct // no error on success
		Target: target,
		Phase:  phase,
		Status: models.SignalSuccess,
	})
}

func (r *Reporter) Failure(ctx context.Context, target, phase, errText string) {
	if err := r.errors.UpsertError(ctx, target, errText); err != nil {
		r.log.ErrorContext(ctx, "failed to persist error record",
			"target", target, "error", err)
	}

	r.publish(ctx, models.SyncSignal{ //nolint:exhaustruct // stamped by the publisher
		Target: target,
		Phase:  phase,
		Status: models.SignalFailed,
		Error:  errText,
	})
}

func (r *Reporter) publish(ctx context.Context, sig models.SyncSignal) {
	if err := r.signals.Publish(ctx, sig); err != nil {
		r.log.ErrorContext(ctx, "failed to publish sync signal",
			"target", sig.Target, "status", sig.Status, "error", err)
	}
}
