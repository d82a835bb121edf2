package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/apperr"
	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/evidence"
	"github.com/patrickwarner/pollwatch/internal/geoip"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/middleware"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
	"github.com/patrickwarner/pollwatch/internal/ratelimit"
)

// multipartOverhead is the allowance for form fields on top of file content.
const multipartOverhead = 1 << 20

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Incidents *incidents.Service
	Evidence  *evidence.Intake
	Limiter   *ratelimit.CallerLimiter
	Analytics analytics.Service
	GeoIP     *geoip.GeoIP
	// PG backs the moderation summary; when nil it is computed from Store.
	PG      *db.Postgres
	Store   models.IncidentStore
	Auth    *middleware.Authenticator
	Metrics observability.MetricsRegistry
	Config  config.Config
	tracer  trace.Tracer
	now     func() time.Time
}

// NewServer constructs a Server. analytics, geo and pg may be nil.
func NewServer(logger *zap.Logger, svc *incidents.Service, intake *evidence.Intake, limiter *ratelimit.CallerLimiter, analyticsSvc analytics.Service, geo *geoip.GeoIP, pg *db.Postgres, store models.IncidentStore, auth *middleware.Authenticator, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:    logger,
		Incidents: svc,
		Evidence:  intake,
		Limiter:   limiter,
		Analytics: analyticsSvc,
		GeoIP:     geo,
		PG:        pg,
		Store:     store,
		Auth:      auth,
		Metrics:   metrics,
		Config:    cfg,
		tracer:    observability.Tracer("api"),
		now:       time.Now,
	}
}

// maxUploadBytes bounds a whole create request body.
func (s *Server) maxUploadBytes() int64 {
	return int64(s.Evidence.MaxFiles())*s.Evidence.MaxBytes() + multipartOverhead
}

type msgResponse struct {
	Msg string `json:"msg"`
}

func (s *Server) finish(endpoint string, r *http.Request, start time.Time, status int) {
	s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}

func writeMsg(w http.ResponseWriter, status int, msg string) int {
	return writeJSON(w, status, msgResponse{Msg: msg})
}

// writeError maps a service failure onto a status code and {"msg"} body.
// Internal detail is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		return writeMsg(w, http.StatusInternalServerError, "Server error")
	}
	msg := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	return writeMsg(w, status, msg)
}

// recordEvent sends a lifecycle event to analytics. Failures are logged.
func (s *Server) recordEvent(r *http.Request, action string, inc *models.Incident, caller *models.Caller) {
	if s.Analytics == nil || inc == nil {
		return
	}
	role := "anonymous"
	if caller != nil {
		role = caller.Role
		if role == "" {
			role = "user"
		}
	}
	ev := analytics.Event{
		Timestamp:     s.now().UTC(),
		Action:        action,
		IncidentID:    inc.ID,
		IncidentType:  string(inc.IncidentType),
		Status:        string(inc.Status),
		Anonymous:     inc.Anonymous,
		EvidenceCount: len(inc.Evidence),
		ActorRole:     role,
	}.WithSubmitter(analytics.SubmitterFromRequest(r, s.GeoIP))
	if err := s.Analytics.RecordIncidentEvent(r.Context(), ev); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("record analytics event",
			zap.String("action", action), zap.String("incident_id", inc.ID), zap.Error(err))
	}
}
