package models

import (
	"strings"
	"time"
)

// TestDescription is a description long enough to pass validation.
var TestDescription = strings.Repeat("Ballot boxes arrived unsealed at the station. ", 2)

// NewTestIncidentStore creates a new in-memory incident store for testing
func NewTestIncidentStore() *InMemoryIncidentStore {
	return NewInMemoryIncidentStore()
}

// NewTestIncident builds a stored-shape incident with the given id, status and
// reporter. An empty reporter produces an anonymous report.
func NewTestIncident(id string, status Status, reporter string, createdAt time.Time) Incident {
	inc := Incident{
		ID:           id,
		IncidentType: IncidentViolence,
		Location:     "Kibera Primary",
		Description:  TestDescription,
		Evidence:     []string{},
		Status:       status,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if reporter == "" {
		inc.Anonymous = true
	} else {
		inc.ReportedBy = StringPtr(reporter)
	}
	return inc
}
