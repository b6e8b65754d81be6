package broker

import (
	"context"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samborba/taskflow/internal/transport"
)

// fakeChannel is a minimal in-memory stand-in for *amqp.Channel, recording
// the consumer tag passed to Consume and Cancel so tests can verify
// StopConsuming cancels the exact subscription StartConsuming registered.
type fakeChannel struct {
	mu           sync.Mutex
	consumeTag   string
	cancelTag    string
	cancelCalls  int
	published    []amqp.Publishing
	deliveryCh   chan amqp.Delivery
}

func (f *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(string, string, string, bool, amqp.Table) error { return nil }

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(_, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumeTag = consumer
	f.deliveryCh = make(chan amqp.Delivery)
	return f.deliveryCh, nil
}

func (f *fakeChannel) Cancel(consumer string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelTag = consumer
	f.cancelCalls++
	if f.deliveryCh != nil {
		close(f.deliveryCh)
	}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func newTestAdapter(t *testing.T, ch *fakeChannel) *Adapter {
	t.Helper()
	registry := transport.NewRegistry()
	a, err := newAdapter(Config{ConsumerName: "worker-1"}, ch, registry)
	if err != nil {
		t.Fatalf("newAdapter: %v", err)
	}
	return a
}

// Broker consumer-tag capture: StartConsuming then StopConsuming must
// cancel the same tag the broker was given, never the empty string.
func TestAdapter_StopConsumingCancelsCapturedTag(t *testing.T) {
	ch := &fakeChannel{}
	a := newTestAdapter(t, ch)

	if err := a.StartConsuming(context.Background()); err != nil {
		t.Fatalf("StartConsuming: %v", err)
	}
	if err := a.StopConsuming(); err != nil {
		t.Fatalf("StopConsuming: %v", err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.cancelCalls != 1 {
		t.Fatalf("expected exactly one Cancel call, got %d", ch.cancelCalls)
	}
	if ch.cancelTag == "" {
		t.Fatalf("Cancel was called with an empty consumer tag")
	}
	if ch.cancelTag != ch.consumeTag {
		t.Fatalf("Cancel tag %q does not match Consume tag %q", ch.cancelTag, ch.consumeTag)
	}
}

func TestAdapter_StopConsumingWithoutStartIsNoop(t *testing.T) {
	ch := &fakeChannel{}
	a := newTestAdapter(t, ch)

	if err := a.StopConsuming(); err != nil {
		t.Fatalf("StopConsuming without Start: %v", err)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.cancelCalls != 0 {
		t.Fatalf("expected no Cancel call, got %d", ch.cancelCalls)
	}
}

func TestAdapter_SubmitPublishesToTaskQueue(t *testing.T) {
	ch := &fakeChannel{}
	a := newTestAdapter(t, ch)

	err := a.Submit(context.Background(), transport.Payload{ID: "t1", Type: "noop"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(ch.published))
	}
}
