package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/apperr"
	"github.com/patrickwarner/pollwatch/internal/evidence"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/middleware"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/reporting"
)

// ListIncidentsHandler handles GET /api/incidents.
func (s *Server) ListIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "list_incidents"

	list, err := s.Incidents.List(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, list))
}

// GetIncidentHandler handles GET /api/incidents/{id}.
func (s *Server) GetIncidentHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "get_incident"

	inc, err := s.Incidents.Get(r.Context(), middleware.CallerFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, inc))
}

// CreateIncidentHandler handles POST /api/incidents. It accepts
// multipart/form-data with up to five evidence files, or a JSON body without
// files.
func (s *Server) CreateIncidentHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "create_incident"
	ctx, span := s.tracer.Start(r.Context(), "CreateIncidentHandler")
	defer span.End()
	r = r.WithContext(ctx)

	caller := middleware.CallerFromContext(ctx)
	if !caller.Authenticated() {
		s.finish(endpoint, r, start, s.writeError(w, r, apperr.Unauthorized()))
		return
	}
	if s.Limiter != nil && !s.Limiter.Allow(caller.ID) {
		span.SetAttributes(attribute.Bool("rate_limited", true))
		s.finish(endpoint, r, start, s.writeError(w, r, apperr.RateLimited()))
		return
	}

	if r.ContentLength > s.maxUploadBytes() {
		s.finish(endpoint, r, start, writeMsg(w, http.StatusRequestEntityTooLarge, "Request too large"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	var (
		in   incidents.CreateInput
		refs []string
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		in, err = decodeCreateJSON(r)
	} else {
		in, refs, err = s.decodeCreateMultipart(r)
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.finish(endpoint, r, start, writeMsg(w, http.StatusRequestEntityTooLarge, "Request too large"))
			return
		}
		s.recordRejection(r, in, caller, err)
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	in.Evidence = refs

	inc, err := s.Incidents.Create(ctx, caller, in)
	if err != nil {
		s.Evidence.Remove(refs)
		s.recordRejection(r, in, caller, err)
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	span.SetAttributes(attribute.String("incident.id", inc.ID), attribute.Int("evidence.count", len(refs)))
	s.recordEvent(r, analytics.ActionCreated, inc, caller)
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, inc))
}

// recordRejection logs a rejected submission to analytics. Only validation
// failures are recorded.
func (s *Server) recordRejection(r *http.Request, in incidents.CreateInput, caller *models.Caller, err error) {
	if apperr.KindOf(err) != apperr.KindValidation {
		return
	}
	s.recordEvent(r, analytics.ActionRejected, &models.Incident{
		IncidentType: models.IncidentType(in.IncidentType),
		Anonymous:    in.Anonymous,
		Evidence:     in.Evidence,
	}, caller)
}

type createJSON struct {
	IncidentType string          `json:"incidentType"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	Anonymous    any             `json:"anonymous"`
	Coordinates  json.RawMessage `json:"coordinates"`
}

func decodeCreateJSON(r *http.Request) (incidents.CreateInput, error) {
	var body createJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return incidents.CreateInput{}, err
		}
		return incidents.CreateInput{}, apperr.Validation(apperr.ReasonInvalidArg, "invalid json")
	}
	anonymous, err := incidents.ParseAnonymous(body.Anonymous)
	if err != nil {
		return incidents.CreateInput{}, err
	}
	// coordinates may arrive as an object or as a JSON-encoded string
	raw := string(body.Coordinates)
	var quoted string
	if json.Unmarshal(body.Coordinates, &quoted) == nil {
		raw = quoted
	}
	coords, err := incidents.ParseCoordinates(raw)
	if err != nil {
		return incidents.CreateInput{}, err
	}
	return incidents.CreateInput{
		IncidentType: body.IncidentType,
		Location:     body.Location,
		Description:  body.Description,
		Anonymous:    anonymous,
		Coordinates:  coords,
	}, nil
}

func (s *Server) decodeCreateMultipart(r *http.Request) (incidents.CreateInput, []string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return incidents.CreateInput{}, nil, err
		}
		return incidents.CreateInput{}, nil, apperr.Validation(apperr.ReasonInvalidArg, "invalid multipart form")
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	anonymous, err := incidents.ParseAnonymous(r.FormValue("anonymous"))
	if err != nil {
		return incidents.CreateInput{}, nil, err
	}
	coords, err := incidents.ParseCoordinates(r.FormValue("coordinates"))
	if err != nil {
		return incidents.CreateInput{}, nil, err
	}
	in := incidents.CreateInput{
		IncidentType: r.FormValue("incidentType"),
		Location:     r.FormValue("location"),
		Description:  r.FormValue("description"),
		Anonymous:    anonymous,
		Coordinates:  coords,
	}
	// fail fast before touching the disk
	if err := in.Validate(); err != nil {
		return in, nil, err
	}

	headers := r.MultipartForm.File["evidence"]
	files := make([]evidence.File, len(headers))
	for i, fh := range headers {
		files[i] = evidence.FromMultipart(fh)
	}
	refs, err := s.Evidence.Accept(r.Context(), files)
	if err != nil {
		return in, nil, err
	}
	return in, refs, nil
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateIncidentStatusHandler handles PUT /api/incidents/{id}.
func (s *Server) UpdateIncidentStatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "update_incident"

	caller := middleware.CallerFromContext(r.Context())
	if !caller.IsAdmin() {
		s.finish(endpoint, r, start, s.writeError(w, r, apperr.Unauthorized()))
		return
	}
	var body statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, multipartOverhead)).Decode(&body); err != nil {
		s.finish(endpoint, r, start, writeMsg(w, http.StatusBadRequest, "invalid json"))
		return
	}

	inc, err := s.Incidents.UpdateStatus(r.Context(), caller, mux.Vars(r)["id"], models.Status(strings.TrimSpace(body.Status)))
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	s.recordEvent(r, analytics.ActionStatusChanged, inc, caller)
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, inc))
}

// DeleteIncidentHandler handles DELETE /api/incidents/{id}. Stored evidence
// files of the removed report are deleted as well.
func (s *Server) DeleteIncidentHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "delete_incident"

	caller := middleware.CallerFromContext(r.Context())
	inc, err := s.Incidents.Delete(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	s.Evidence.Remove(inc.Evidence)
	s.recordEvent(r, analytics.ActionDeleted, inc, caller)
	s.finish(endpoint, r, start, writeMsg(w, http.StatusOK, "Incident removed"))
}

// MyIncidentsHandler handles GET /api/incidents/user/incidents.
func (s *Server) MyIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "my_incidents"

	list, err := s.Incidents.ListByReporter(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, err))
		return
	}
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, list))
}

// SummaryHandler handles GET /api/incidents/summary?days=N for admins.
func (s *Server) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "incident_summary"

	if !middleware.CallerFromContext(r.Context()).IsAdmin() {
		s.finish(endpoint, r, start, s.writeError(w, r, apperr.Unauthorized()))
		return
	}
	days := reporting.DefaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.finish(endpoint, r, start, writeMsg(w, http.StatusBadRequest, "days must be an integer"))
			return
		}
		days = n
	}

	var (
		summary *reporting.ModerationSummary
		err     error
	)
	if s.PG != nil {
		summary, err = reporting.GenerateModerationSummary(r.Context(), s.PG.DB, days)
	} else {
		var list []models.Incident
		list, err = s.Store.Find(r.Context(), models.IncidentFilter{})
		if err == nil {
			summary = reporting.FromIncidents(list, days, s.now())
		}
	}
	if err != nil {
		s.finish(endpoint, r, start, s.writeError(w, r, apperr.Internal("incident summary", err)))
		return
	}
	middleware.LoggerFromRequest(r, s.Logger).Debug("summary generated", zap.Int("days", summary.Days), zap.Int64("total", summary.Total))
	s.finish(endpoint, r, start, writeJSON(w, http.StatusOK, summary))
}

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.finish("health", r, start, writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}))
}
