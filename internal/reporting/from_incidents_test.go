package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/pollwatch/internal/models"
)

func TestFromIncidents(t *testing.T) {
	now := time.Date(2024, 11, 6, 12, 0, 0, 0, time.UTC)
	mk := func(id string, typ models.IncidentType, st models.Status, age time.Duration) models.Incident {
		inc := models.NewTestIncident(id, st, "u1", now.Add(-age))
		inc.IncidentType = typ
		return inc
	}
	list := []models.Incident{
		mk("a", models.IncidentLongQueues, models.StatusVerified, time.Hour),
		mk("b", models.IncidentLongQueues, models.StatusPending, 2*time.Hour),
		mk("c", models.IncidentBribery, models.StatusFlagged, 30*time.Hour),
		mk("d", models.IncidentViolence, models.StatusPending, 10*24*time.Hour),
	}

	s := FromIncidents(list, 3, now)

	assert.Equal(t, 3, s.Days)
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(1), s.ByStatus["pending"])
	assert.Equal(t, int64(0), s.ByStatus["resolved"])
	require.Len(t, s.ByType, 2)
	assert.Equal(t, TypeCount{IncidentType: "long-queues", Reports: 2, Verified: 1}, s.ByType[0])
	require.Len(t, s.Daily, 2)
	assert.True(t, s.Daily[0].Date.After(s.Daily[1].Date))
	require.NotNil(t, s.OldestPending, "backlog age covers reports outside the window")
	assert.Equal(t, now.Add(-10*24*time.Hour), *s.OldestPending)
}
