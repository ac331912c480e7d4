package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryTransport is a Transport backed by a buffered channel. It stands
// in for SQS in local development and in tests; Delete is a no-op since
// a received message is already gone from the channel.
type MemoryTransport struct {
	ch chan Message
}

// NewMemoryTransport creates a MemoryTransport with the given capacity.
func NewMemoryTransport(buffer int) *MemoryTransport {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryTransport{ch: make(chan Message, buffer)}
}

// Send enqueues a payload, blocking until there is room or ctx is done.
func (t *MemoryTransport) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case t.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to waitSeconds for the first message, then drains
// whatever else is immediately available up to maxMessages.
func (t *MemoryTransport) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	// A nil deadline channel never fires, which models waitSeconds <= 0
	// as "wait until a message or cancellation".
	var deadline <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-deadline:
		return nil, nil
	case first := <-t.ch:
		messages := append(make([]Message, 0, maxMessages), first)
		for len(messages) < maxMessages {
			select {
			case msg := <-t.ch:
				messages = append(messages, msg)
			default:
				return messages, nil
			}
		}
		return messages, nil
	}
}

func (t *MemoryTransport) Delete(_ context.Context, _ string) error {
	return nil
}
