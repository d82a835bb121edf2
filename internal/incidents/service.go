// Package incidents implements the report lifecycle: listing, submission,
// moderation and removal, with visibility and ownership rules applied per
// caller.
package incidents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/apperr"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
)

// Change actions published after a successful mutation.
const (
	ActionCreated       = "created"
	ActionStatusChanged = "status_changed"
	ActionDeleted       = "deleted"
)

// ListCache caches the public (verified only) list.
//
// Every invalidation bumps a generation counter. A fill carries the
// generation read before the store was queried and is dropped when an
// invalidation happened in between, so a list computed before a mutation
// can never be cached after it.
type ListCache interface {
	GetPublicList(ctx context.Context) ([]models.Incident, bool, error)
	PublicListGeneration(ctx context.Context) (int64, error)
	// SetPublicList stores list only if the generation is still gen and
	// reports whether it did.
	SetPublicList(ctx context.Context, gen int64, list []models.Incident) (bool, error)
	InvalidatePublicList(ctx context.Context) error
}

// Change describes a committed mutation.
type Change struct {
	IncidentID string `json:"id"`
	Action     string `json:"action"`
	Status     string `json:"status,omitempty"`
}

// ChangeNotifier fans out committed mutations to other instances.
type ChangeNotifier interface {
	PublishChange(ctx context.Context, c Change) error
}

// Service applies access rules on top of an IncidentStore.
type Service struct {
	store    models.IncidentStore
	cache    ListCache
	notifier ChangeNotifier
	metrics  observability.MetricsRegistry
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// NewService wires a Service. A nil logger or metrics registry is replaced
// with a no-op.
func NewService(store models.IncidentStore, logger *zap.Logger, metrics observability.MetricsRegistry) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		tracer:  observability.Tracer("incidents"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// SetCache enables caching of the public list.
func (s *Service) SetCache(c ListCache) { s.cache = c }

// SetNotifier enables change notifications.
func (s *Service) SetNotifier(n ChangeNotifier) { s.notifier = n }

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// List returns every incident for admins and only verified incidents for
// everyone else, newest first. Anonymous reporters are always redacted.
func (s *Service) List(ctx context.Context, caller *models.Caller) ([]models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.List")
	defer span.End()
	span.SetAttributes(attribute.Bool("caller.admin", caller.IsAdmin()))

	if caller.IsAdmin() {
		list, err := s.store.Find(ctx, models.IncidentFilter{})
		if err != nil {
			return nil, s.fail(span, apperr.Internal("list incidents", err))
		}
		return redactAll(list), nil
	}

	if cached, ok := s.cachedPublicList(ctx); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	// read before the store so a concurrent invalidation voids the fill
	var (
		gen     int64
		canFill bool
	)
	if s.cache != nil {
		g, err := s.cache.PublicListGeneration(ctx)
		if err != nil {
			s.logger.Warn("read public list generation", zap.Error(err))
		} else {
			gen, canFill = g, true
		}
	}

	list, err := s.store.Find(ctx, models.IncidentFilter{Status: models.StatusPtr(models.StatusVerified)})
	if err != nil {
		return nil, s.fail(span, apperr.Internal("list verified incidents", err))
	}
	out := redactAll(list)
	if canFill {
		stored, err := s.cache.SetPublicList(ctx, gen, out)
		switch {
		case err != nil:
			s.logger.Warn("cache public list", zap.Error(err))
		case !stored:
			s.logger.Debug("public list changed while loading; not cached", zap.Int64("generation", gen))
		}
	}
	return out, nil
}

func (s *Service) cachedPublicList(ctx context.Context) ([]models.Incident, bool) {
	if s.cache == nil {
		return nil, false
	}
	list, ok, err := s.cache.GetPublicList(ctx)
	switch {
	case err != nil:
		s.metrics.IncrementCacheLookups("error")
		s.logger.Warn("read cached public list", zap.Error(err))
		return nil, false
	case !ok:
		s.metrics.IncrementCacheLookups("miss")
		return nil, false
	}
	s.metrics.IncrementCacheLookups("hit")
	return list, true
}

// Get returns one incident. Reports that are not yet verified are only
// visible to their reporter. Malformed IDs are reported as not found.
func (s *Service) Get(ctx context.Context, caller *models.Caller, id string) (*models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.Get")
	defer span.End()
	span.SetAttributes(attribute.String("incident.id", id))

	inc, err := s.find(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if inc.Status != models.StatusVerified && (caller == nil || !inc.IsReportedBy(caller.ID)) {
		return nil, s.fail(span, apperr.Unauthorized())
	}
	out := inc.Redacted()
	return &out, nil
}

// Create stores a new pending report. The caller is recorded as reporter
// unless the report is anonymous.
func (s *Service) Create(ctx context.Context, caller *models.Caller, in CreateInput) (*models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.Create")
	defer span.End()

	if !caller.Authenticated() {
		return nil, s.fail(span, apperr.Unauthorized())
	}
	if err := in.Validate(); err != nil {
		return nil, s.fail(span, err)
	}

	now := s.now()
	evidence := append([]string{}, in.Evidence...)
	inc := &models.Incident{
		ID:           s.newID(),
		IncidentType: models.IncidentType(in.IncidentType),
		Location:     in.Location,
		Description:  in.Description,
		Anonymous:    in.Anonymous,
		Evidence:     evidence,
		Coordinates:  in.Coordinates,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !inc.Anonymous {
		inc.ReportedBy = models.StringPtr(caller.ID)
	}
	if err := s.store.Insert(ctx, inc); err != nil {
		return nil, s.fail(span, apperr.Internal("insert incident", err))
	}
	span.SetAttributes(
		attribute.String("incident.id", inc.ID),
		attribute.String("incident.type", string(inc.IncidentType)),
	)

	s.metrics.IncrementIncidentsCreated(string(inc.IncidentType), inc.Anonymous)
	s.afterMutation(ctx, Change{IncidentID: inc.ID, Action: ActionCreated, Status: string(inc.Status)})
	s.logger.Info("incident created",
		zap.String("incident_id", inc.ID),
		zap.String("incident_type", string(inc.IncidentType)),
		zap.Bool("anonymous", inc.Anonymous),
		zap.Int("evidence", len(inc.Evidence)))

	out := inc.Redacted()
	return &out, nil
}

// UpdateStatus sets the moderation status. Only admins may call it; the
// caller is recorded as the verifier.
func (s *Service) UpdateStatus(ctx context.Context, caller *models.Caller, id string, status models.Status) (*models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("incident.id", id), attribute.String("incident.status", string(status)))

	if !caller.IsAdmin() {
		return nil, s.fail(span, apperr.Unauthorized())
	}
	if !status.Valid() {
		_, err := ParseStatus(string(status))
		return nil, s.fail(span, err)
	}
	if _, err := s.find(ctx, id); err != nil {
		return nil, s.fail(span, err)
	}

	updated, err := s.store.Update(ctx, id, models.IncidentUpdate{
		Status:     models.StatusPtr(status),
		VerifiedBy: models.StringPtr(caller.ID),
		UpdatedAt:  s.now(),
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, s.fail(span, apperr.NotFound("Incident"))
	}
	if err != nil {
		return nil, s.fail(span, apperr.Internal("update incident", err))
	}

	s.metrics.IncrementStatusChanges(string(status))
	s.afterMutation(ctx, Change{IncidentID: id, Action: ActionStatusChanged, Status: string(status)})
	s.logger.Info("incident status changed",
		zap.String("incident_id", id),
		zap.String("status", string(status)),
		zap.String("verified_by", caller.ID))

	out := updated.Redacted()
	return &out, nil
}

// Delete removes an incident. Admins may delete any report; other callers
// only their own.
func (s *Service) Delete(ctx context.Context, caller *models.Caller, id string) (*models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("incident.id", id))

	inc, err := s.find(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !caller.IsAdmin() && (caller == nil || !inc.IsReportedBy(caller.ID)) {
		return nil, s.fail(span, apperr.Unauthorized())
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.fail(span, apperr.NotFound("Incident"))
		}
		return nil, s.fail(span, apperr.Internal("delete incident", err))
	}

	s.metrics.IncrementIncidentsDeleted()
	s.afterMutation(ctx, Change{IncidentID: id, Action: ActionDeleted})
	s.logger.Info("incident deleted", zap.String("incident_id", id))

	out := inc.Redacted()
	return &out, nil
}

// ListByReporter returns the caller's own reports in every status, newest
// first. Anonymous reports carry no reporter and are never included.
func (s *Service) ListByReporter(ctx context.Context, caller *models.Caller) ([]models.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incidents.ListByReporter")
	defer span.End()

	if !caller.Authenticated() {
		return nil, s.fail(span, apperr.Unauthorized())
	}
	list, err := s.store.Find(ctx, models.IncidentFilter{ReportedBy: models.StringPtr(caller.ID)})
	if err != nil {
		return nil, s.fail(span, apperr.Internal("list reporter incidents", err))
	}
	return redactAll(list), nil
}

func (s *Service) find(ctx context.Context, id string) (*models.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("Incident")
	}
	inc, err := s.store.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("Incident")
	}
	if err != nil {
		return nil, apperr.Internal("find incident", err)
	}
	return inc, nil
}

// afterMutation runs side effects that must not fail the operation.
func (s *Service) afterMutation(ctx context.Context, c Change) {
	if s.cache != nil {
		if err := s.cache.InvalidatePublicList(ctx); err != nil {
			s.logger.Warn("invalidate public list", zap.String("incident_id", c.IncidentID), zap.Error(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishChange(ctx, c); err != nil {
			s.logger.Warn("publish incident change", zap.String("incident_id", c.IncidentID), zap.Error(err))
		}
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("incident operation failed", zap.Error(err))
	}
	return err
}

func redactAll(list []models.Incident) []models.Incident {
	out := make([]models.Incident, len(list))
	for i, inc := range list {
		out[i] = inc.Redacted()
	}
	return out
}
