package events

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hts/authsvc"
)

const (
	DefaultCreatedTopic = "account-created-events"
	DefaultDeletedTopic = "account-deleted-events"

	defaultBatchSize = 50
)

// Handler applies decoded lifecycle events. *authsvc.Engine implements it.
type Handler interface {
	HandleAccountEvent(ctx context.Context, ev authsvc.AccountEvent) error
}

type Topics struct {
	Created string
	Deleted string
}

func (t Topics) withDefaults() Topics {
	if t.Created == "" {
		t.Created = DefaultCreatedTopic
	}
	if t.Deleted == "" {
		t.Deleted = DefaultDeletedTopic
	}
	return t
}

// Names lists both topics for consumer group subscription.
func (t Topics) Names() []string {
	t = t.withDefaults()
	return []string{t.Created, t.Deleted}
}

// Stats are cumulative worker counters.
type Stats struct {
	Handled   uint64
	Failed    uint64
	Malformed uint64
	Unknown   uint64
}

// Worker drains the lifecycle topics into a Handler. A message is committed
// once it reaches a final outcome, success or failure, so a poison message
// never blocks the partition. Messages interrupted by shutdown are not.
type Worker struct {
	logger    *slog.Logger
	consumer  Consumer
	handler   Handler
	topics    Topics
	interval  time.Duration
	batchSize int

	handled   atomic.Uint64
	failed    atomic.Uint64
	malformed atomic.Uint64
	unknown   atomic.Uint64
}

func NewWorker(logger *slog.Logger, consumer Consumer, handler Handler, topics Topics, interval time.Duration) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		logger:    logger,
		consumer:  consumer,
		handler:   handler,
		topics:    topics.withDefaults(),
		interval:  interval,
		batchSize: defaultBatchSize,
	}
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next poll; otherwise the worker waits one interval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.processOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n >= w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processOnce handles one polled batch in order and commits the prefix that
// reached a final outcome. Once ctx is done the remaining messages are left
// uncommitted for redelivery.
func (w *Worker) processOnce(ctx context.Context) (int, error) {
	msgs, err := w.consumer.Poll(ctx, w.batchSize)
	done := 0
	for _, msg := range msgs {
		if ctx.Err() != nil || !w.handle(ctx, msg) {
			break
		}
		done++
	}
	if done < len(msgs) {
		w.logger.InfoContext(ctx, "batch interrupted, messages left for redelivery",
			"module", "events.worker",
			"operation", "process_once",
			"outcome", "interrupted",
			"pending", len(msgs)-done,
		)
	}
	if done > 0 {
		// Commit even when ctx is done so handled work is not redelivered.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		cerr := w.consumer.Commit(commitCtx, msgs[:done]...)
		cancel()
		if cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return len(msgs), err
}

// handle reports whether msg reached a final outcome and may be committed.
// A handler failure caused by ctx ending is not final.
func (w *Worker) handle(ctx context.Context, msg Message) bool {
	var (
		ev  authsvc.AccountEvent
		err error
	)
	switch msg.Topic {
	case w.topics.Created:
		ev, err = DecodeAccountCreated(msg.Payload)
	case w.topics.Deleted:
		ev, err = DecodeAccountDeleted(msg.Payload)
	default:
		w.unknown.Add(1)
		w.logger.WarnContext(ctx, "message on unexpected topic skipped",
			"module", "events.worker",
			"operation", "handle",
			"outcome", "skipped",
			"topic", msg.Topic,
		)
		return true
	}
	if err != nil {
		w.malformed.Add(1)
		w.logger.WarnContext(ctx, "undecodable account event acknowledged",
			"module", "events.worker",
			"operation", "decode",
			"outcome", "failure",
			"topic", msg.Topic,
			"error", err,
		)
		return true
	}

	// The handler logs its own terminal failures; those are acked.
	if err := w.handler.HandleAccountEvent(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.failed.Add(1)
		return true
	}
	w.handled.Add(1)
	return true
}

func (w *Worker) Stats() Stats {
	return Stats{
		Handled:   w.handled.Load(),
		Failed:    w.failed.Load(),
		Malformed: w.malformed.Load(),
		Unknown:   w.unknown.Load(),
	}
}
