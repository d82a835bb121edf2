// Package analytics records incident lifecycle events in ClickHouse for
// offline analysis of where and how reports are submitted and moderated.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/observability"
)

// ErrUnavailable is returned when no analytics database is configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Event actions.
const (
	ActionCreated       = "created"
	ActionStatusChanged = "status_changed"
	ActionDeleted       = "deleted"
	ActionRejected      = "rejected"
)

// Service records lifecycle events. Implementations return ErrUnavailable
// when their backing store is missing.
type Service interface {
	RecordIncidentEvent(ctx context.Context, ev Event) error
}

// Event is one row of the incident_events table. It never carries the
// reporter identity.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	IncidentID    string    `json:"incident_id"`
	IncidentType  string    `json:"incident_type"`
	Status        string    `json:"status"`
	Anonymous     bool      `json:"anonymous"`
	EvidenceCount int       `json:"evidence_count"`
	ActorRole     string    `json:"actor_role"`
	DeviceType    string    `json:"device_type"`
	Country       string    `json:"country"`
	Region        string    `json:"region"`
}

// WithSubmitter copies request-derived fields onto the event.
func (e Event) WithSubmitter(s Submitter) Event {
	e.DeviceType, e.Country, e.Region = s.DeviceType, s.Country, s.Region
	return e
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ Service = (*Analytics)(nil)

const createEventsSQL = `CREATE TABLE IF NOT EXISTS incident_events (
    timestamp      DateTime,
    action         LowCardinality(String),
    incident_id    String,
    incident_type  LowCardinality(String),
    status         LowCardinality(String),
    anonymous      UInt8,
    evidence_count UInt8,
    actor_role     LowCardinality(String),
    device_type    LowCardinality(String),
    country        LowCardinality(String),
    region         String
) ENGINE=MergeTree() ORDER BY (action, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(ctx context.Context, dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	a := &Analytics{DB: db, Metrics: metrics}
	if err := a.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	zap.L().Info("Connected to ClickHouse")
	return a, nil
}

func (a *Analytics) ensureSchema(ctx context.Context) error {
	if _, err := a.DB.ExecContext(ctx, createEventsSQL); err != nil {
		return fmt.Errorf("clickhouse create table: %w", err)
	}
	return nil
}

// RecordIncidentEvent inserts a single event row.
func (a *Analytics) RecordIncidentEvent(ctx context.Context, ev Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	stmt := `INSERT INTO incident_events (timestamp, action, incident_id, incident_type, status, anonymous, evidence_count, actor_role, device_type, country, region) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.Action, ev.IncidentID, ev.IncidentType,
		ev.Status, boolToUInt8(ev.Anonymous), uint8(min(ev.EvidenceCount, 255)), ev.ActorRole,
		ev.DeviceType, ev.Country, ev.Region); err != nil {
		if a.Metrics != nil {
			a.Metrics.IncrementAnalyticsErrors()
		}
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("action", ev.Action))
		return fmt.Errorf("insert %s event: %w", ev.Action, err)
	}
	return nil
}

// EventsForIncident returns the recorded history of one incident, oldest
// first.
func (a *Analytics) EventsForIncident(ctx context.Context, incidentID string) ([]Event, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, action, incident_id, incident_type, status, anonymous, evidence_count, actor_role, device_type, country, region FROM incident_events WHERE incident_id = ? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			anonymous uint8
			evidence  uint8
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Action, &ev.IncidentID, &ev.IncidentType, &ev.Status,
			&anonymous, &evidence, &ev.ActorRole, &ev.DeviceType, &ev.Country, &ev.Region); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Anonymous = anonymous == 1
		ev.EvidenceCount = int(evidence)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// CountryCount is the number of created reports from one country.
type CountryCount struct {
	Country string `json:"country"`
	Reports int64  `json:"reports"`
}

// ReportsByCountry counts created events per submitter country since the
// given time, largest first.
func (a *Analytics) ReportsByCountry(ctx context.Context, since time.Time) ([]CountryCount, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT country, count() AS reports FROM incident_events WHERE action = ? AND timestamp >= ? GROUP BY country ORDER BY reports DESC, country`
	rows, err := a.DB.QueryContext(ctx, query, ActionCreated, since)
	if err != nil {
		return nil, fmt.Errorf("query country counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []CountryCount{}
	for rows.Next() {
		var c CountryCount
		if err := rows.Scan(&c.Country, &c.Reports); err != nil {
			return nil, fmt.Errorf("scan country count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
