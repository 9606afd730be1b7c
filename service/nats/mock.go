package nats

import (
	"context"
	"sync"

	"github.com/ledgercore/ledgerd/service/ledger"
)

// MockPublisher is a mock implementation of ledger.Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*CommitEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*CommitEvent, 0),
	}
}

// SetPublishError configures the error returned by subsequent publishes.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// PublishCommit records the event and returns any configured error.
func (m *MockPublisher) PublishCommit(ctx context.Context, rec *ledger.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, FromRecord(rec))
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*CommitEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*CommitEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForSender returns events published for a sender address.
func (m *MockPublisher) GetPublishedEventsForSender(address string) []*CommitEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CommitEvent
	for _, e := range m.publishedEvents {
		if e.SenderAddress == address {
			out = append(out, e)
		}
	}
	return out
}
