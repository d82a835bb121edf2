package models

import (
	"time"
)

// IncidentType classifies what went wrong at a polling place.
type IncidentType string

const (
	IncidentViolence         IncidentType = "violence"
	IncidentBribery          IncidentType = "bribery"
	IncidentTechFailure      IncidentType = "tech-failure"
	IncidentLongQueues       IncidentType = "long-queues"
	IncidentMissingMaterials IncidentType = "missing-materials"
	IncidentAgentIssues      IncidentType = "agent-issues"
	IncidentIrregularities   IncidentType = "irregularities"
	IncidentOther            IncidentType = "other"
)

// IncidentTypes lists every accepted incident type.
var IncidentTypes = []IncidentType{
	IncidentViolence,
	IncidentBribery,
	IncidentTechFailure,
	IncidentLongQueues,
	IncidentMissingMaterials,
	IncidentAgentIssues,
	IncidentIrregularities,
	IncidentOther,
}

// Valid reports whether t is one of IncidentTypes.
func (t IncidentType) Valid() bool {
	for _, v := range IncidentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Status is the moderation state of a report.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFlagged  Status = "flagged"
	StatusResolved Status = "resolved"
)

// Statuses lists every moderation status.
var Statuses = []Status{StatusPending, StatusVerified, StatusFlagged, StatusResolved}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Coordinates is an optional GPS fix attached to a report.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Incident is a citizen-submitted election incident report.
type Incident struct {
	ID           string       `json:"id"`
	IncidentType IncidentType `json:"incidentType"`
	Location     string       `json:"location"`
	Description  string       `json:"description"`
	Anonymous    bool         `json:"anonymous"`
	Evidence     []string     `json:"evidence"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	Status       Status       `json:"status"`
	ReportedBy   *string      `json:"reportedBy"`
	VerifiedBy   *string      `json:"verifiedBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// IsReportedBy reports whether userID submitted the incident. Anonymous
// incidents carry no reporter and never match.
func (i *Incident) IsReportedBy(userID string) bool {
	return userID != "" && i.ReportedBy != nil && *i.ReportedBy == userID
}

// Redacted returns a copy of the incident safe to hand to any caller: the
// reporter is cleared for anonymous reports and slices are not shared.
func (i Incident) Redacted() Incident {
	out := i
	if out.Anonymous {
		out.ReportedBy = nil
	}
	if i.Evidence != nil {
		out.Evidence = append([]string(nil), i.Evidence...)
	} else {
		out.Evidence = []string{}
	}
	return out
}

// IncidentFilter selects incidents by equality on the set fields.
type IncidentFilter struct {
	Status     *Status
	ReportedBy *string
}

// Matches reports whether inc satisfies the filter.
func (f IncidentFilter) Matches(inc *Incident) bool {
	if f.Status != nil && inc.Status != *f.Status {
		return false
	}
	if f.ReportedBy != nil && !inc.IsReportedBy(*f.ReportedBy) {
		return false
	}
	return true
}

// IncidentUpdate is a partial update; nil fields are left untouched.
type IncidentUpdate struct {
	Status     *Status
	VerifiedBy *string
	UpdatedAt  time.Time
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status { return &s }
