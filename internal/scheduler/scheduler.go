package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/kv"
	"github.com/datapult/insightsync/internal/models"
)

// Scheduler accepts job descriptors for one-shot deferred execution and
// exposes the persisted outcome of completed jobs.
type Scheduler interface {
	Submit(ctx context.Context, d models.JobDescriptor) (string, error)
	Outcome(ctx context.Context, handle string) (models.JobOutcome, error)
}

// Handler executes one job. The returned outcome is persisted before the
// job is acknowledged, so later jobs can observe it.
type Handler interface {
	HandleJob(ctx context.Context, d models.JobDescriptor) models.JobOutcome
}

// NATSScheduler publishes descriptors onto a work-queue stream. Each
// descriptor carries a unique handle; submitting the same handle twice is
// the caller's responsibility to avoid.
type NATSScheduler struct {
	js       jetstream.JetStream
	outcomes kv.KeyValueStore
	log      *slog.Logger
}

func NewNATSScheduler(js jetstream.JetStream, outcomes kv.KeyValueStore, log *slog.Logger) *NATSScheduler {
	return &NATSScheduler{
		js:       js,
		outcomes: outcomes,
		log:      log,
	}
}

func (s *NATSScheduler) Submit(ctx context.Context, d models.JobDescriptor) (string, error) {
	if d.Handle == "" {
		d.Handle = uuid.New().String()
	}
	if d.Kind == "" {
		return "", fmt.Errorf("job descriptor has no kind")
	}

	data, err := d.ToJSON()
	if err != nil {
		return "", fmt.Errorf("encode job descriptor: %w", err)
	}

	_, err = s.js.Publish(ctx, internal.SchedulerSubject, data)
	if err != nil {
		return "", fmt.Errorf("publish job %s: %w", d.Handle, err)
	}

	s.log.DebugContext(ctx, "job submitted",
		"handle", d.Handle, "kind", d.Kind, "not_before", d.NotBefore)

	return d.Handle, nil
}

func (s *NATSScheduler) Outcome(ctx context.Context, handle string) (zero models.JobOutcome, _ error) {
	data, err := s.outcomes.Get(ctx, outcomeKey(handle))
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return zero, internal.ErrJobOutcomeNotFound
		}
		return zero, fmt.Errorf("get outcome for job %s: %w", handle, err)
	}

	outcome, err := models.JobOutcomeFromJSON(data)
	if err != nil {
		return zero, fmt.Errorf("decode outcome for job %s: %w", handle, err)
	}

	return outcome, nil
}

func outcomeKey(handle string) string {
	return "outcome." + handle
}

// Runner consumes the job stream and dispatches descriptors to handlers by
// kind. MaxAckPending of 1 keeps execution strictly sequential: a stage job
// is never started while an earlier one is in flight.
type Runner struct {
	js       jetstream.JetStream
	outcomes kv.KeyValueStore
	handlers map[string]Handler
	log      *slog.Logger

	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

func NewRunner(js jetstream.JetStream, outcomes kv.KeyValueStore, log *slog.Logger) *Runner {
	return &Runner{
		js:       js,
		outcomes: outcomes,
		handlers: make(map[string]Handler),
		log:      log,
		done:     make(chan struct{}),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (r *Runner) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Start creates the durable consumer and begins the consume loop in a
// goroutine. The loop runs until Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	consumer, err := r.js.CreateOrUpdateConsumer(ctx, internal.SchedulerStreamName, jetstream.ConsumerConfig{ //nolint:exhaustruct // optional fields
		Durable:       internal.SchedulerConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       internal.SchedulerAckWait,
		MaxAckPending: 1,
		MaxDeliver:    -1,
	})
	if err != nil {
		return fmt.Errorf("create job consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.consumeLoop(runCtx, consumer)

	return nil
}

func (r *Runner) consumeLoop(ctx context.Context, consumer jetstream.Consumer) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(internal.SchedulerFetchWait))
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
				r.log.ErrorContext(ctx, "failed to fetch job", "error", err)
				time.Sleep(internal.FetchRetryDelay)
			}
			continue
		}

		for msg := range msgs.Messages() {
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Runner) handleMessage(ctx context.Context, msg jetstream.Msg) {
	d, err := models.JobDescriptorFromJSON(msg.Data())
	if err != nil {
		r.log.ErrorContext(ctx, "discarding undecodable job", "error", err)
		r.term(ctx, msg)
		return
	}

	// Deferred jobs go back to the stream until their time arrives.
	if wait := time.Until(d.NotBefore); wait > 0 {
		if err := msg.NakWithDelay(wait); err != nil {
			r.log.ErrorContext(ctx, "failed to defer job",
				"handle", d.Handle, "error", err)
		}
		return
	}

	handler, ok := r.handlers[d.Kind]
	if !ok {
		r.log.ErrorContext(ctx, "discarding job of unknown kind",
			"handle", d.Handle, "kind", d.Kind)
		r.term(ctx, msg)
		return
	}

	outcome := handler.HandleJob(ctx, d)

	if err := r.saveOutcome(ctx, d.Handle, outcome); err != nil {
		r.log.ErrorContext(ctx, "failed to persist job outcome",
			"handle", d.Handle, "error", err)
		// Without the outcome the job did not complete observably. Let
		// redelivery run it again.
		if err := msg.Nak(); err != nil {
			r.log.ErrorContext(ctx, "failed to nak job", "handle", d.Handle, "error", err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		r.log.ErrorContext(ctx, "failed to ack job", "handle", d.Handle, "error", err)
	}
}

func (r *Runner) saveOutcome(ctx context.Context, handle string, outcome models.JobOutcome) error {
	data, err := outcome.ToJSON()
	if err != nil {
		return fmt.Errorf("encode job outcome: %w", err)
	}

	err = r.outcomes.Put(ctx, outcomeKey(handle), data)
	if err != nil {
		return fmt.Errorf("put job outcome: %w", err)
	}

	return nil
}

func (r *Runner) term(ctx context.Context, msg jetstream.Msg) {
	if err := msg.Term(); err != nil {
		r.log.ErrorContext(ctx, "failed to terminate message", "error", err)
	}
}

// Stop halts the consume loop and waits for the in-flight job, if any.
func (r *Runner) Stop() {
	r.shutdownOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		select {
		case <-r.done:
		case <-time.After(internal.SchedulerAckWait):
			r.log.Warn("timed out waiting for job runner to stop")
		}
	})
}
