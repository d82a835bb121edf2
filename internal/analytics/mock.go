package analytics

import (
	"context"
	"sync"
)

var _ Service = (*MockAnalytics)(nil)

// MockAnalytics keeps recorded events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// NewMockAnalytics creates an empty mock.
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordIncidentEvent stores ev and returns m.Err.
func (m *MockAnalytics) RecordIncidentEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MockAnalytics) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
