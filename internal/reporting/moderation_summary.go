// Package reporting builds moderation summaries from the incident store so
// admins can see the review backlog and what kinds of incidents are coming in.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultDays is the window used when none is given.
const DefaultDays = 7

// MaxDays bounds the reporting window.
const MaxDays = 365

// TypeCount breaks reports down by incident type.
type TypeCount struct {
	IncidentType string `json:"incidentType"`
	Reports      int64  `json:"reports"`
	Verified     int64  `json:"verified"`
}

// DailyCount is the number of reports submitted on one day (UTC).
type DailyCount struct {
	Date    time.Time `json:"date"`
	Reports int64     `json:"reports"`
}

// ModerationSummary aggregates incidents created within the last Days days.
type ModerationSummary struct {
	Days          int              `json:"days"`
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"byStatus"`
	ByType        []TypeCount      `json:"byType"`
	Daily         []DailyCount     `json:"daily"`
	OldestPending *time.Time       `json:"oldestPending"`
}

// ClampDays maps a requested window onto [1, MaxDays], using DefaultDays for
// non-positive values.
func ClampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultDays
	case days > MaxDays:
		return MaxDays
	}
	return days
}

// GenerateModerationSummary queries Postgres for incident counts over the
// last days days.
func GenerateModerationSummary(ctx context.Context, db *sql.DB, days int) (*ModerationSummary, error) {
	days = ClampDays(days)
	summary := &ModerationSummary{
		Days:     days,
		ByStatus: map[string]int64{"pending": 0, "verified": 0, "flagged": 0, "resolved": 0},
	}

	if err := statusCounts(ctx, db, days, summary); err != nil {
		return nil, fmt.Errorf("get status counts: %w", err)
	}

	byType, err := typeCounts(ctx, db, days)
	if err != nil {
		return nil, fmt.Errorf("get type counts: %w", err)
	}
	summary.ByType = byType

	daily, err := dailyCounts(ctx, db, days)
	if err != nil {
		return nil, fmt.Errorf("get daily counts: %w", err)
	}
	summary.Daily = daily

	var oldest sql.NullTime
	if err := db.QueryRowContext(ctx,
		`SELECT min(created_at) FROM incidents WHERE status = 'pending'`).Scan(&oldest); err != nil {
		return nil, fmt.Errorf("get oldest pending: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		summary.OldestPending = &t
	}
	return summary, nil
}

func statusCounts(ctx context.Context, db *sql.DB, days int, summary *ModerationSummary) error {
	rows, err := db.QueryContext(ctx, `
		SELECT status, count(*)
		FROM incidents
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY status`, days)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		summary.ByStatus[status] = n
		summary.Total += n
	}
	return rows.Err()
}

func typeCounts(ctx context.Context, db *sql.DB, days int) ([]TypeCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT incident_type, count(*), count(*) FILTER (WHERE status = 'verified')
		FROM incidents
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY incident_type
		ORDER BY count(*) DESC, incident_type`, days)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	out := []TypeCount{}
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.IncidentType, &tc.Reports, &tc.Verified); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func dailyCounts(ctx context.Context, db *sql.DB, days int) ([]DailyCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, count(*)
		FROM incidents
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY day
		ORDER BY day DESC`, days)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	out := []DailyCount{}
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Reports); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
