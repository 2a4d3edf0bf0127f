// Package queue wires the ingestion pipeline to a durable NATS queue: the
// input subject routes each message through exactly one stage handler,
// failures retry or fall to a DLQ subject, and a replay helper drains the
// DLQ back to the input subject in FIFO order.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tripscoutai/tripscout/engine/ingestion"
	"github.com/tripscoutai/tripscout/pkg/natsutil"
)

// InputSubject carries ingestion events awaiting their next stage.
const InputSubject = "ingestion.events"

// DLQSubject carries events that exhausted their retry budget.
const DLQSubject = "ingestion.events.dlq"

// Worker drains InputSubject, advancing one event per message through the
// ingestion pipeline.
type Worker struct {
	nc        *nats.Conn
	processor *ingestion.Processor
	log       *slog.Logger
}

// NewWorker builds a Worker bound to a connection and processor.
func NewWorker(nc *nats.Conn, processor *ingestion.Processor, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{nc: nc, processor: processor, log: log}
}

// Start subscribes to the input subject. Each delivery runs exactly one
// stage transition: a returned next event is enqueued, a handler error
// increments retry_count and either requeues or moves to DLQ. Trace
// context carried in the message headers (natsutil.Subscribe extracts it)
// flows through Process and into whatever the handler logs next.
func (w *Worker) Start(_ context.Context) (*nats.Subscription, error) {
	return natsutil.Subscribe(w.nc, InputSubject, func(ctx context.Context, ev ingestion.Event) {
		next, err := w.processor.Process(ctx, ev)
		switch {
		case err != nil:
			ev.RetryCount++
			ev.Error = err.Error()
			if ev.RetryCount >= ev.MaxRetries {
				w.log.Error("queue.dlq", "content_source_id", ev.ContentSourceID, "stage", ev.Stage, "retry_count", ev.RetryCount, "err", err)
				w.publish(ctx, DLQSubject, ev)
			} else {
				w.log.Warn("queue.retry", "content_source_id", ev.ContentSourceID, "stage", ev.Stage, "retry_count", ev.RetryCount, "err", err)
				w.publish(ctx, InputSubject, ev)
			}
		case next != nil:
			w.publish(ctx, InputSubject, *next)
		default:
			w.log.Info("queue.no_advance", "content_source_id", ev.ContentSourceID, "stage", ev.Stage)
		}
	})
}

func (w *Worker) publish(ctx context.Context, subject string, ev ingestion.Event) {
	if err := natsutil.Publish(ctx, w.nc, subject, ev); err != nil {
		w.log.Error("queue.publish_failed", "subject", subject, "err", err)
	}
}

// Replay drains DLQSubject into InputSubject in FIFO order, stopping once
// no message arrives within drainTimeout. It returns the count replayed.
func Replay(nc *nats.Conn, drainTimeout time.Duration) (int, error) {
	sub, err := nc.SubscribeSync(DLQSubject)
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	if err := nc.Flush(); err != nil {
		return 0, err
	}

	count := 0
	for {
		msg, err := sub.NextMsg(drainTimeout)
		if err != nil {
			break // timeout: DLQ drained
		}
		if err := nc.Publish(InputSubject, msg.Data); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Enqueue publishes a freshly created ingestion event to the input subject.
func Enqueue(nc *nats.Conn, ev ingestion.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return nc.Publish(InputSubject, data)
}
