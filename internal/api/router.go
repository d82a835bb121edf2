package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrickwarner/pollwatch/internal/middleware"
)

// NewRouter registers every route. Static segments under /api/incidents are
// registered before /{id} so they never match as an id.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	optional := func(h http.HandlerFunc) http.Handler { return s.Auth.Optional(h) }
	required := func(h http.HandlerFunc) http.Handler { return s.Auth.Required(h) }

	inc := r.PathPrefix("/api/incidents").Subrouter()
	inc.Handle("", optional(s.ListIncidentsHandler)).Methods("GET")
	inc.Handle("", required(s.CreateIncidentHandler)).Methods("POST")
	inc.Handle("/user/incidents", required(s.MyIncidentsHandler)).Methods("GET")
	inc.Handle("/summary", required(s.SummaryHandler)).Methods("GET")
	inc.Handle("/{id}", optional(s.GetIncidentHandler)).Methods("GET")
	inc.Handle("/{id}", required(s.UpdateIncidentStatusHandler)).Methods("PUT")
	inc.Handle("/{id}", required(s.DeleteIncidentHandler)).Methods("DELETE")

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	if s.Evidence != nil {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.Evidence.Dir())))
		r.PathPrefix("/uploads/").Handler(noDirListing(files)).Methods("GET")
	}
	return r
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
