package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hts/authsvc"
)

type fakeConsumer struct {
	mu        sync.Mutex
	batches   [][]Message
	committed []Message
	commitErr error
}

func (c *fakeConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil, ctx.Err()
	}
	next := c.batches[0]
	c.batches = c.batches[1:]
	return next, nil
}

func (c *fakeConsumer) Commit(_ context.Context, msgs ...Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, msgs...)
	return c.commitErr
}

func (c *fakeConsumer) Committed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.committed)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []authsvc.AccountEvent
	err    error
}

func (h *recordingHandler) HandleAccountEvent(_ context.Context, ev authsvc.AccountEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return h.err
}

func (h *recordingHandler) Events() []authsvc.AccountEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]authsvc.AccountEvent(nil), h.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerDispatchesByTopic(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(42, "secret")},
		{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(43)},
	}}}
	handler := &recordingHandler{}
	w := NewWorker(quietLogger(), consumer, handler, Topics{}, time.Millisecond)

	n, err := w.processOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("processOnce: n=%d err=%v", n, err)
	}

	got := handler.Events()
	want := []authsvc.AccountEvent{authsvc.AccountCreated(42, "secret"), authsvc.AccountDeleted(43)}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if consumer.Committed() != 2 {
		t.Fatalf("expected 2 commits, got %d", consumer.Committed())
	}
	if s := w.Stats(); s.Handled != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestWorkerAcksMalformedAndFailedMessages(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultCreatedTopic, Payload: []byte{0xff}},
		{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(1)},
		{Topic: "somewhere-else", Payload: EncodeAccountDeleted(2)},
	}}}
	handler := &recordingHandler{err: authsvc.ErrInternal}
	w := NewWorker(quietLogger(), consumer, handler, Topics{}, time.Millisecond)

	if _, err := w.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if consumer.Committed() != 3 {
		t.Fatalf("every message must be committed, got %d", consumer.Committed())
	}
	if len(handler.Events()) != 1 {
		t.Fatalf("only the decodable message reaches the handler, got %d", len(handler.Events()))
	}
	s := w.Stats()
	if s.Malformed != 1 || s.Failed != 1 || s.Unknown != 1 || s.Handled != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

// cancelingHandler cancels the worker context while handling the event at
// index cancelAt and fails it the way a store call cut short would.
type cancelingHandler struct {
	recordingHandler
	cancel   context.CancelFunc
	cancelAt int
}

func (h *cancelingHandler) HandleAccountEvent(ctx context.Context, ev authsvc.AccountEvent) error {
	if len(h.Events()) == h.cancelAt {
		h.cancel()
	}
	_ = h.recordingHandler.HandleAccountEvent(ctx, ev)
	return ctx.Err()
}

func TestWorkerLeavesInterruptedMessagesUncommitted(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(1, "a")},
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(2, "b")},
		{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(3)},
	}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := &cancelingHandler{cancel: cancel, cancelAt: 1}
	w := NewWorker(quietLogger(), consumer, handler, Topics{}, time.Millisecond)

	n, err := w.processOnce(ctx)
	if err != nil || n != 3 {
		t.Fatalf("processOnce: n=%d err=%v", n, err)
	}
	if consumer.Committed() != 1 {
		t.Fatalf("only the first message completed, got %d commits", consumer.Committed())
	}
	if len(handler.Events()) != 2 {
		t.Fatalf("handling must stop after cancel, got %d events", len(handler.Events()))
	}
	if s := w.Stats(); s.Handled != 1 || s.Failed != 0 {
		t.Fatalf("interrupted message must not count as failed: %+v", s)
	}
}

func TestWorkerCommitsNothingWhenCanceledBeforeHandling(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(1)},
	}}}
	handler := &recordingHandler{}
	w := NewWorker(quietLogger(), consumer, handler, Topics{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if consumer.Committed() != 0 || len(handler.Events()) != 0 {
		t.Fatalf("expected nothing handled or committed, got %d commits %d events", consumer.Committed(), len(handler.Events()))
	}
}

func TestWorkerCustomTopics(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: "acct.created", Payload: EncodeAccountCreated(5, "pw")},
	}}}
	handler := &recordingHandler{}
	w := NewWorker(quietLogger(), consumer, handler, Topics{Created: "acct.created", Deleted: "acct.deleted"}, time.Millisecond)

	if _, err := w.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(handler.Events()) != 1 {
		t.Fatal("expected custom topic to be routed")
	}
}

func TestWorkerReportsCommitFailure(t *testing.T) {
	commitErr := errors.New("coordinator not available")
	consumer := &fakeConsumer{
		batches:   [][]Message{{{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(1)}}},
		commitErr: commitErr,
	}
	w := NewWorker(quietLogger(), consumer, &recordingHandler{}, Topics{}, time.Millisecond)

	if _, err := w.processOnce(context.Background()); !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	consumer := &fakeConsumer{}
	w := NewWorker(quietLogger(), consumer, &recordingHandler{}, Topics{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNoopConsumer(t *testing.T) {
	c := NewNoopConsumer()
	msgs, err := c.Poll(context.Background(), 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected empty poll, got %v %v", msgs, err)
	}
	if err := c.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTopicNames(t *testing.T) {
	names := Topics{}.Names()
	if len(names) != 2 || names[0] != DefaultCreatedTopic || names[1] != DefaultDeletedTopic {
		t.Fatalf("unexpected names %v", names)
	}
}
