package signals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/datapult/insightsync/internal/client"
	"github.com/datapult/insightsync/internal/models"
)

// Publisher emits sync status events. Events are fire and forget: consumers
// that miss one recover from the status store, so delivery is best effort.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	log     *slog.Logger
}

func NewPublisher(nc *client.NATSClient, log *slog.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats client cannot be nil")
	}

	return &Publisher{
		js:      nc.JetStream(),
		subject: models.GetSyncSignalsSubject(),
		log:     log,
	}, nil
}

// Publish stamps and emits one signal. Signals without a target are refused:
// a consumer cannot act on an event it cannot attribute.
func (p *Publisher) Publish(ctx context.Context, sig models.SyncSignal) error {
	if sig.Target == "" {
		return fmt.Errorf("signal has no target")
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}

	data, err := sig.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	_, err = p.js.Publish(ctx, p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", p.subject, err)
	}

	p.log.DebugContext(ctx, "sync signal published",
		"target", sig.Target, "phase", sig.Phase, "status", sig.Status)

	return nil
}

func (p *Publisher) GetSubject() string {
	return p.subject
}
