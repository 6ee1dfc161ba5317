package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrMissingTopic is returned when a message is written without a topic.
var ErrMissingTopic = errors.New("message topic is required")

// MemoryBroker is an in-process append-only log per topic. Every reader
// sees messages in the order they were written, which is a stronger
// guarantee than the per-key ordering Kafka gives.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]*memoryTopic
}

type memoryTopic struct {
	mu     sync.Mutex
	log    []kafka.Message
	notify chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]*memoryTopic)}
}

func (b *MemoryBroker) topic(name string) *memoryTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

// Messages returns a snapshot of everything written to a topic.
func (b *MemoryBroker) Messages(topic string) []kafka.Message {
	t := b.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]kafka.Message, len(t.log))
	copy(out, t.log)
	return out
}

// Writer returns a Producer that routes each message by its Topic field.
func (b *MemoryBroker) Writer() Producer { return &memoryWriter{broker: b} }

// Reader returns a Consumer positioned at the start of the topic.
func (b *MemoryBroker) Reader(topic string) Consumer {
	return &memoryReader{topic: b.topic(topic)}
}

type memoryWriter struct {
	broker *MemoryBroker
	closed atomic.Bool
}

func (w *memoryWriter) WriteMessage(ctx context.Context, msg kafka.Message) error {
	if w.closed.Load() {
		return io.ErrClosedPipe
	}
	if msg.Topic == "" {
		return ErrMissingTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t := w.broker.topic(msg.Topic)
	t.mu.Lock()
	msg.Offset = int64(len(t.log))
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	t.log = append(t.log, msg)
	close(t.notify)
	t.notify = make(chan struct{})
	t.mu.Unlock()
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed.Store(true)
	return nil
}

type memoryReader struct {
	topic  *memoryTopic
	offset int
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
}

func (r *memoryReader) doneCh() chan struct{} {
	r.once.Do(func() { r.done = make(chan struct{}) })
	return r.done
}

func (r *memoryReader) ReadMessage(ctx context.Context) (*kafka.Message, error) {
	done := r.doneCh()
	for {
		if r.closed.Load() {
			return nil, io.EOF
		}
		r.topic.mu.Lock()
		if r.offset < len(r.topic.log) {
			msg := r.topic.log[r.offset]
			r.offset++
			r.topic.mu.Unlock()
			return &msg, nil
		}
		wait := r.topic.notify
		r.topic.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
			return nil, io.EOF
		case <-wait:
		}
	}
}

func (r *memoryReader) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		close(r.doneCh())
	}
	return nil
}
