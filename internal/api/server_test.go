package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/evidence"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/middleware"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
	"github.com/patrickwarner/pollwatch/internal/ratelimit"
	"github.com/patrickwarner/pollwatch/internal/token"
)

var testSecret = []byte("test-secret")

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type testEnv struct {
	server    *Server
	router    *mux.Router
	store     *models.InMemoryIncidentStore
	analytics *analytics.MockAnalytics
	redis     *miniredis.Miniredis
}

type envOption func(*config.Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := config.Config{
		UploadDir:           t.TempDir(),
		EvidenceMaxFiles:    5,
		EvidenceMaxBytes:    10 << 20,
		RateLimitEnabled:    true,
		RateLimitCapacity:   100,
		RateLimitRefillRate: 1,
		ListCacheTTL:        time.Minute,
	}
	for _, o := range opts {
		o(&cfg)
	}

	logger := zap.NewNop()
	metrics := observability.NewNoOpRegistry()
	store := models.NewTestIncidentStore()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rs := &db.RedisStore{Client: client, ListTTL: cfg.ListCacheTTL}

	svc := incidents.NewService(store, logger, metrics)
	svc.SetCache(rs)
	svc.SetNotifier(rs)

	intake, err := evidence.NewIntake(cfg.UploadDir, cfg.EvidenceMaxFiles, cfg.EvidenceMaxBytes, logger, metrics)
	require.NoError(t, err)

	limiter := ratelimit.NewCallerLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metrics)
	mock := analytics.NewMockAnalytics()
	auth := middleware.NewAuthenticator(testSecret, time.Hour, logger)

	s := NewServer(logger, svc, intake, limiter, mock, nil, nil, store, auth, metrics, cfg)
	return &testEnv{server: s, router: NewRouter(s), store: store, analytics: mock, redis: mr}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seed(t *testing.T, status models.Status, reporter string, at time.Time) models.Incident {
	t.Helper()
	inc := models.NewTestIncident(uuid.NewString(), status, reporter, at)
	require.NoError(t, e.store.Insert(context.Background(), &inc))
	return inc
}

func authHeader(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := token.Generate(userID, role, testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func withAuth(t *testing.T, req *http.Request, userID, role string) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", authHeader(t, userID, role))
	return req
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files []upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="evidence"; filename="%s"`, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/incidents", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"incidentType": "violence",
		"location":     "Kibera Primary",
		"description":  models.TestDescription,
		"anonymous":    "false",
	}
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func msgOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[msgResponse](t, rr.Body).Msg
}
