package analytics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/pollwatch/internal/geoip"
	"github.com/patrickwarner/pollwatch/internal/observability"
)

func newMockAnalytics(t *testing.T) (*Analytics, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return &Analytics{DB: db, Metrics: observability.NewNoOpRegistry()}, mock
}

func TestRecordIncidentEvent(t *testing.T) {
	a, mock := newMockAnalytics(t)
	at := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO incident_events").
		WithArgs(at, ActionCreated, "id-1", "violence", "pending", uint8(1), uint8(2), "user", "mobile", "KE", "30").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.RecordIncidentEvent(context.Background(), Event{
		Timestamp:     at,
		Action:        ActionCreated,
		IncidentID:    "id-1",
		IncidentType:  "violence",
		Status:        "pending",
		Anonymous:     true,
		EvidenceCount: 2,
		ActorRole:     "user",
	}.WithSubmitter(Submitter{DeviceType: "mobile", Country: "KE", Region: "30"}))
	require.NoError(t, err)
}

func TestRecordIncidentEvent_InsertError(t *testing.T) {
	a, mock := newMockAnalytics(t)
	mock.ExpectExec("INSERT INTO incident_events").WillReturnError(errors.New("connection reset"))

	err := a.RecordIncidentEvent(context.Background(), Event{Action: ActionDeleted, IncidentID: "id-1"})
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	var a *Analytics
	assert.ErrorIs(t, a.RecordIncidentEvent(context.Background(), Event{}), ErrUnavailable)
	_, err := (&Analytics{}).EventsForIncident(context.Background(), "id")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEventsForIncident(t *testing.T) {
	a, mock := newMockAnalytics(t)
	at := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)
	cols := []string{"timestamp", "action", "incident_id", "incident_type", "status", "anonymous", "evidence_count", "actor_role", "device_type", "country", "region"}
	mock.ExpectQuery("SELECT .+ FROM incident_events WHERE incident_id = \\?").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(at, ActionCreated, "id-1", "bribery", "pending", uint8(0), uint8(1), "user", "desktop", "NG", "LA").
			AddRow(at.Add(time.Hour), ActionStatusChanged, "id-1", "bribery", "verified", uint8(0), uint8(1), "admin", "desktop", "NG", ""))

	events, err := a.EventsForIncident(context.Background(), "id-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].EvidenceCount)
	assert.False(t, events[0].Anonymous)
	assert.Equal(t, "verified", events[1].Status)
}

func TestReportsByCountry(t *testing.T) {
	a, mock := newMockAnalytics(t)
	since := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT country, count\\(\\) AS reports FROM incident_events").
		WithArgs(ActionCreated, since).
		WillReturnRows(sqlmock.NewRows([]string{"country", "reports"}).AddRow("KE", int64(7)).AddRow("NG", int64(3)))

	counts, err := a.ReportsByCountry(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []CountryCount{{Country: "KE", Reports: 7}, {Country: "NG", Reports: 3}}, counts)
}

func TestSubmitterFromUA(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		device string
		bot    bool
	}{
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1", "mobile", false},
		{"android", "Mozilla/5.0 (Linux; Android 11; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.210 Mobile Safari/537.36", "mobile", false},
		{"windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36", "desktop", false},
		{"empty", "", "other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SubmitterFromUA(tt.ua)
			assert.Equal(t, tt.device, s.DeviceType)
			assert.Equal(t, tt.bot, s.IsBot)
		})
	}
}

func TestSubmitterFromRequest(t *testing.T) {
	g, err := geoip.FromJSON([]byte(`[{"net":"41.90.0.0/16","country":"KE","region":"30"}]`))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/incidents", nil)
	r.Header.Set("X-Forwarded-For", "41.90.1.2, 10.0.0.1")
	s := SubmitterFromRequest(r, g)
	assert.Equal(t, "KE", s.Country)
	assert.Equal(t, "30", s.Region)

	r = httptest.NewRequest("POST", "/api/incidents", nil)
	r.RemoteAddr = "8.8.8.8:5555"
	assert.Equal(t, "8.8.8.8", ClientIP(r).String())
	assert.Empty(t, SubmitterFromRequest(r, nil).Country)
}
