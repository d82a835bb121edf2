package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/models"
)

// Postgres wraps a postgres DB connection and implements
// models.IncidentStore.
type Postgres struct {
	DB *sql.DB
}

var _ models.IncidentStore = (*Postgres)(nil)

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS incidents (
    id UUID PRIMARY KEY,
    incident_type TEXT NOT NULL,
    location TEXT NOT NULL,
    description TEXT NOT NULL,
    anonymous BOOLEAN NOT NULL DEFAULT FALSE,
    evidence TEXT[] NOT NULL DEFAULT '{}',
    lat DOUBLE PRECISION NULL,
    lng DOUBLE PRECISION NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    reported_by TEXT NULL,
    verified_by TEXT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS incidents_status_created_idx ON incidents (status, created_at DESC);
CREATE INDEX IF NOT EXISTS incidents_reporter_created_idx ON incidents (reported_by, created_at DESC);
`

const incidentColumns = `id, incident_type, location, description, anonymous, evidence, lat, lng, status, reported_by, verified_by, created_at, updated_at`

// InitPostgres opens an instrumented connection pool and ensures the schema.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Insert stores a new incident.
func (p *Postgres) Insert(ctx context.Context, inc *models.Incident) error {
	var lat, lng sql.NullFloat64
	if inc.Coordinates != nil {
		lat = sql.NullFloat64{Float64: inc.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: inc.Coordinates.Lng, Valid: true}
	}
	evidence := inc.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO incidents (`+incidentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		inc.ID, string(inc.IncidentType), inc.Location, inc.Description, inc.Anonymous,
		pq.Array(evidence), lat, lng, string(inc.Status),
		nullString(inc.ReportedBy), nullString(inc.VerifiedBy), inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// FindByID loads one incident.
func (p *Postgres) FindByID(ctx context.Context, id string) (*models.Incident, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find incident: %w", err)
	}
	return inc, nil
}

// Find returns matching incidents, newest first.
func (p *Postgres) Find(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ReportedBy != nil {
		args = append(args, *filter.ReportedBy)
		where = append(where, fmt.Sprintf("reported_by = $%d", len(args)))
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []models.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Update applies a partial update atomically and returns the new row.
func (p *Postgres) Update(ctx context.Context, id string, upd models.IncidentUpdate) (*models.Incident, error) {
	var (
		sets []string
		args = []any{id}
	)
	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.VerifiedBy != nil {
		args = append(args, *upd.VerifiedBy)
		sets = append(sets, fmt.Sprintf("verified_by = $%d", len(args)))
	}
	updatedAt := upd.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	args = append(args, updatedAt)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	row := p.DB.QueryRowContext(ctx,
		`UPDATE incidents SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+incidentColumns,
		args...)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	return inc, nil
}

// Delete removes an incident.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		inc                    models.Incident
		incidentType, status   string
		evidence               pq.StringArray
		lat, lng               sql.NullFloat64
		reportedBy, verifiedBy sql.NullString
	)
	if err := row.Scan(&inc.ID, &incidentType, &inc.Location, &inc.Description, &inc.Anonymous,
		&evidence, &lat, &lng, &status, &reportedBy, &verifiedBy, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, err
	}
	inc.IncidentType = models.IncidentType(incidentType)
	inc.Status = models.Status(status)
	inc.Evidence = []string(evidence)
	if inc.Evidence == nil {
		inc.Evidence = []string{}
	}
	if lat.Valid && lng.Valid {
		inc.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if reportedBy.Valid {
		inc.ReportedBy = models.StringPtr(reportedBy.String)
	}
	if verifiedBy.Valid {
		inc.VerifiedBy = models.StringPtr(verifiedBy.String)
	}
	return &inc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
