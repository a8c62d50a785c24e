// Package mailbox queues tagged point-to-point messages until they are received.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("mailbox closed")

// Key identifies one ordered message stream.
type Key struct {
	Source int
	Dest   int
	Tag    int
}

type Mailbox struct {
	mu      sync.Mutex
	queues  map[Key][][]byte
	changed chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func New() *Mailbox {
	return &Mailbox{
		queues:  make(map[Key][][]byte),
		changed: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Put never blocks; messages stay queued until taken.
func (m *Mailbox) Put(key Key, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
		return ErrClosed
	default:
	}

	m.queues[key] = append(m.queues[key], payload)

	close(m.changed)
	m.changed = make(chan struct{})

	return nil
}

// TryTake returns the oldest message for key without waiting.
func (m *Mailbox) TryTake(key Key) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pop(key)
}

// requires m.mu
func (m *Mailbox) pop(key Key) ([]byte, bool) {
	queue := m.queues[key]
	if len(queue) == 0 {
		return nil, false
	}

	payload := queue[0]
	if len(queue) == 1 {
		delete(m.queues, key)
	} else {
		m.queues[key] = queue[1:]
	}
	return payload, true
}

// Take blocks until a message for key is queued, the mailbox is closed, or ctx is done.
func (m *Mailbox) Take(ctx context.Context, key Key) ([]byte, error) {
	for {
		m.mu.Lock()
		if payload, ok := m.pop(key); ok {
			m.mu.Unlock()
			return payload, nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-m.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pending counts queued messages that were never taken.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, queue := range m.queues {
		count += len(queue)
	}
	return count
}

func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.closed) })
}
