package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/models"
)

func newTestTools(t *testing.T) (*incidentTools, *models.InMemoryIncidentStore) {
	t.Helper()
	store := models.NewTestIncidentStore()
	logger := zap.NewNop()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &incidentTools{
		svc:    incidents.NewService(store, logger, nil),
		store:  store,
		logger: logger,
		now:    func() time.Time { return now },
	}, store
}

func insert(t *testing.T, store *models.InMemoryIncidentStore, id string, status models.Status, at time.Time) {
	t.Helper()
	inc := models.NewTestIncident(id, status, "user-1", at)
	require.NoError(t, store.Insert(context.Background(), &inc))
}

func TestListVerifiedHidesPending(t *testing.T) {
	tools, store := newTestTools(t)
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	insert(t, store, "11111111-1111-1111-1111-111111111111", models.StatusVerified, base)
	insert(t, store, "22222222-2222-2222-2222-222222222222", models.StatusPending, base.Add(time.Hour))
	insert(t, store, "33333333-3333-3333-3333-333333333333", models.StatusVerified, base.Add(2*time.Hour))

	_, out, err := tools.ListVerified(context.Background(), nil, ListVerifiedInput{})
	require.NoError(t, err)
	require.Len(t, out.Incidents, 2)
	assert.Equal(t, "33333333-3333-3333-3333-333333333333", out.Incidents[0].ID)

	_, out, err = tools.ListVerified(context.Background(), nil, ListVerifiedInput{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, out.Incidents, 1)

	_, out, err = tools.ListVerified(context.Background(), nil, ListVerifiedInput{IncidentType: "bribery"})
	require.NoError(t, err)
	assert.Empty(t, out.Incidents)
}

func TestSummaryFromStore(t *testing.T) {
	tools, store := newTestTools(t)
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	insert(t, store, "11111111-1111-1111-1111-111111111111", models.StatusVerified, base)
	insert(t, store, "22222222-2222-2222-2222-222222222222", models.StatusPending, base)

	_, summary, err := tools.Summary(context.Background(), nil, SummaryInput{})
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Days)
	assert.Equal(t, int64(2), summary.Total)
	assert.Equal(t, int64(1), summary.ByStatus["pending"])
}

func TestHistoryToolOnlyWithAnalytics(t *testing.T) {
	tools, _ := newTestTools(t)
	assert.NotNil(t, newMCPServer(tools))

	_, _, err := tools.History(context.Background(), nil, HistoryInput{IncidentID: "x"})
	assert.ErrorIs(t, err, analytics.ErrUnavailable)
}
