package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/datapult/insightsync/internal"
)

// Consumer drains the delta feed stream and hands accumulated batches to
// the ingest service. Each stream message carries one uploaded feed chunk
// of newline-separated rows; chunks are flushed together once enough have
// arrived or the flush interval elapses.
type Consumer struct {
	consumer  jetstream.Consumer
	service   *Service
	batchSize int
	maxDelay  time.Duration
	log       *slog.Logger

	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

func NewConsumer(ctx context.Context, js jetstream.JetStream, service *Service, log *slog.Logger) (*Consumer, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, internal.DeltaStreamName, jetstream.ConsumerConfig{ //nolint:exhaustruct // optional fields
		Durable:    internal.DeltaConsumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    internal.SchedulerAckWait,
		MaxDeliver: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("create delta consumer: %w", err)
	}

	return &Consumer{ //nolint:exhaustruct // cancel set on Start
		consumer:  consumer,
		service:   service,
		batchSize: internal.IngestDefaultBatchSize,
		maxDelay:  internal.IngestDefaultMaxDelay,
		log:       log,
		done:      make(chan struct{}),
	}, nil
}

// Start begins the consume loop in a goroutine. The loop runs until Stop.
func (c *Consumer) Start() {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.consumeLoop(runCtx)
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.maxDelay)
	defer ticker.Stop()

	var pending []jetstream.Msg

	flush := func() {
		if len(pending) == 0 {
			return
		}
		c.flush(ctx, pending)
		pending = nil
		ticker.Reset(c.maxDelay)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(internal.SchedulerFetchWait))
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
				c.log.ErrorContext(ctx, "failed to fetch delta chunk", "error", err)
				time.Sleep(internal.FetchRetryDelay)
			}
			continue
		}

		for msg := range msgs.Messages() {
			pending = append(pending, msg)
		}

		if len(pending) >= c.batchSize {
			flush()
		}
	}
}

// flush ingests the accumulated chunks as one batch, one chunk per stream
// message so each chunk's header line is handled. On success every chunk is
// acknowledged; on failure every chunk is re-queued for redelivery.
func (c *Consumer) flush(ctx context.Context, msgs []jetstream.Msg) {
	chunks := make([][]string, 0, len(msgs))
	for _, msg := range msgs {
		chunks = append(chunks, strings.Split(string(msg.Data()), "\n"))
	}

	_, err := c.service.IngestChunks(ctx, chunks)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to ingest delta batch",
			"chunks", len(msgs), "error", err)
		for _, msg := range msgs {
			if nerr := msg.Nak(); nerr != nil {
				c.log.ErrorContext(ctx, "failed to nak delta chunk", "error", nerr)
			}
		}
		return
	}

	for _, msg := range msgs {
		err := retry.Do(
			msg.Ack,
			retry.Attempts(internal.AckRetryAttempts),
			retry.Delay(internal.AckRetryDelay),
			retry.DelayType(retry.FixedDelay),
		)
		if err != nil {
			c.log.ErrorContext(ctx, "failed to ack delta chunk", "error", err)
		}
	}
}

// Stop halts the loop, flushing whatever is pending first.
func (c *Consumer) Stop() {
	c.shutdownOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		select {
		case <-c.done:
		case <-time.After(internal.IngestShutdownTimeout):
			c.log.Warn("timed out waiting for delta consumer to stop")
		}
	})
}
