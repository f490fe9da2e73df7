package transfer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultRedeliveryDelay = time.Second

// MemoryQueue is a queueClient backed by an in-memory buffered channel.
type MemoryQueue struct {
	ch    chan queueMessage
	delay time.Duration
	// delayed counts messages waiting out the redelivery delay.
	delayed atomic.Int64
}

// MemoryQueueOption customizes a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithRedeliveryDelay sets how long a released message stays hidden.
func WithRedeliveryDelay(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if d >= 0 {
			q.delay = d
		}
	}
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int, opts ...MemoryQueueOption) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	q := &MemoryQueue{
		ch:    make(chan queueMessage, buffer),
		delay: defaultRedeliveryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	msg := queueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// Release puts a received message back after the redelivery delay. Receive
// removes messages from the channel, so without this a failed message is lost.
func (q *MemoryQueue) Release(_ context.Context, msg queueMessage) error {
	msg.ReceiptHandle = uuid.NewString()
	q.delayed.Add(1)
	time.AfterFunc(q.delay, func() {
		q.ch <- msg
		q.delayed.Add(-1)
	})
	return nil
}

// Len reports how many messages are waiting, including delayed ones.
func (q *MemoryQueue) Len() int {
	return len(q.ch) + int(q.delayed.Load())
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := make([]queueMessage, 0, max)
	messages = append(messages, first)
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
