package models

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when an incident does not exist in the store.
var ErrNotFound = errors.New("incident not found")

// IncidentStore persists incident reports. Implementations must be safe for
// concurrent use; each call acts on a single record.
type IncidentStore interface {
	Insert(ctx context.Context, inc *Incident) error
	FindByID(ctx context.Context, id string) (*Incident, error)
	// Find returns matching incidents ordered newest first by CreatedAt.
	Find(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	// Update applies a partial update and returns the stored result.
	Update(ctx context.Context, id string, upd IncidentUpdate) (*Incident, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryIncidentStore keeps incidents in a map guarded by a RWMutex.
type InMemoryIncidentStore struct {
	mu        sync.RWMutex
	incidents map[string]Incident
}

// NewInMemoryIncidentStore creates an empty store.
func NewInMemoryIncidentStore() *InMemoryIncidentStore {
	return &InMemoryIncidentStore{incidents: make(map[string]Incident)}
}

// Insert stores a copy of inc. Inserting an existing ID replaces it.
func (s *InMemoryIncidentStore) Insert(_ context.Context, inc *Incident) error {
	if inc == nil || inc.ID == "" {
		return errors.New("incident id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = cloneIncident(*inc)
	return nil
}

// FindByID returns a copy of the stored incident.
func (s *InMemoryIncidentStore) FindByID(_ context.Context, id string) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneIncident(inc)
	return &out, nil
}

// Find returns copies of all matching incidents, newest first.
func (s *InMemoryIncidentStore) Find(_ context.Context, filter IncidentFilter) ([]Incident, error) {
	s.mu.RLock()
	result := make([]Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if filter.Matches(&inc) {
			result = append(result, cloneIncident(inc))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Update applies upd to the stored incident under the write lock.
func (s *InMemoryIncidentStore) Update(_ context.Context, id string, upd IncidentUpdate) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		inc.Status = *upd.Status
	}
	if upd.VerifiedBy != nil {
		inc.VerifiedBy = StringPtr(*upd.VerifiedBy)
	}
	if !upd.UpdatedAt.IsZero() {
		inc.UpdatedAt = upd.UpdatedAt
	}
	s.incidents[id] = inc
	out := cloneIncident(inc)
	return &out, nil
}

// Delete removes the incident.
func (s *InMemoryIncidentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; !ok {
		return ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}

// Len returns the number of stored incidents.
func (s *InMemoryIncidentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// cloneIncident deep copies the pointer and slice fields so callers can't
// mutate stored state.
func cloneIncident(inc Incident) Incident {
	out := inc
	if inc.Evidence != nil {
		out.Evidence = append([]string(nil), inc.Evidence...)
	}
	if inc.Coordinates != nil {
		c := *inc.Coordinates
		out.Coordinates = &c
	}
	if inc.ReportedBy != nil {
		out.ReportedBy = StringPtr(*inc.ReportedBy)
	}
	if inc.VerifiedBy != nil {
		out.VerifiedBy = StringPtr(*inc.VerifiedBy)
	}
	return out
}
