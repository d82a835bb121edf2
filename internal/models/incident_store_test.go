package models

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIncidentStore_InsertFind(t *testing.T) {
	ctx := context.Background()
	store := NewTestIncidentStore()
	base := time.Date(2026, 8, 9, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("a", StatusPending, "u1", base))))
	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("b", StatusVerified, "u2", base.Add(time.Minute)))))
	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("c", StatusVerified, "", base.Add(2*time.Minute)))))

	all, err := store.Find(ctx, IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all), "newest first")

	verified, err := store.Find(ctx, IncidentFilter{Status: StatusPtr(StatusVerified)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(verified))

	mine, err := store.Find(ctx, IncidentFilter{ReportedBy: StringPtr("u1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(mine))
}

func TestInMemoryIncidentStore_FindByIDReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewTestIncidentStore()
	inc := NewTestIncident("a", StatusPending, "u1", time.Now())
	inc.Evidence = []string{"uploads/1.jpg"}
	require.NoError(t, store.Insert(ctx, &inc))

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	got.Evidence[0] = "tampered"
	*got.ReportedBy = "someone"

	again, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "uploads/1.jpg", again.Evidence[0])
	assert.Equal(t, "u1", *again.ReportedBy)
}

func TestInMemoryIncidentStore_UpdatePartial(t *testing.T) {
	ctx := context.Background()
	store := NewTestIncidentStore()
	created := time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("a", StatusPending, "u1", created))))

	now := time.Now()
	out, err := store.Update(ctx, "a", IncidentUpdate{
		Status:     StatusPtr(StatusFlagged),
		VerifiedBy: StringPtr("admin1"),
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFlagged, out.Status)
	require.NotNil(t, out.VerifiedBy)
	assert.Equal(t, "admin1", *out.VerifiedBy)
	assert.True(t, out.UpdatedAt.Equal(now))
	assert.True(t, out.CreatedAt.Equal(created))
	assert.Equal(t, "Kibera Primary", out.Location)

	_, err = store.Update(ctx, "missing", IncidentUpdate{Status: StatusPtr(StatusFlagged)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryIncidentStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewTestIncidentStore()
	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("a", StatusPending, "u1", time.Now()))))

	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)

	_, err := store.FindByID(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryIncidentStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewTestIncidentStore()
	require.NoError(t, store.Insert(ctx, ptr(NewTestIncident("a", StatusPending, "u1", time.Now()))))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := Statuses[i%len(Statuses)]
			_, err := store.Update(ctx, "a", IncidentUpdate{Status: &st, UpdatedAt: time.Now()})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Status.Valid())
}

func TestRedactedClearsAnonymousReporter(t *testing.T) {
	inc := NewTestIncident("a", StatusVerified, "u1", time.Now())
	inc.Anonymous = true

	out := inc.Redacted()
	assert.Nil(t, out.ReportedBy)
	assert.NotNil(t, inc.ReportedBy, "original left untouched")
	assert.NotNil(t, out.Evidence)
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, IncidentType("tech-failure").Valid())
	assert.False(t, IncidentType("fraud").Valid())
	assert.True(t, Status("resolved").Valid())
	assert.False(t, Status("closed").Valid())

	var nilCaller *Caller
	assert.False(t, nilCaller.IsAdmin())
	assert.False(t, nilCaller.Authenticated())
	assert.True(t, (&Caller{ID: "a1", Role: RoleAdmin}).IsAdmin())
}

func ptr(inc Incident) *Incident { return &inc }

func ids(list []Incident) []string {
	out := make([]string, len(list))
	for i, inc := range list {
		out[i] = inc.ID
	}
	return out
}
