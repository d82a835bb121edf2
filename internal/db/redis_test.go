package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/models"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisStore{Client: client, ListTTL: time.Minute}, mr
}

func TestRedisStore_PublicListRoundTrip(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := rs.GetPublicList(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	inc := models.NewTestIncident("id-1", models.StatusVerified, "", time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC))
	stored, err := rs.SetPublicList(ctx, 0, []models.Incident{inc})
	require.NoError(t, err)
	require.True(t, stored)

	list, ok, err := rs.GetPublicList(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "id-1", list[0].ID)
	assert.Nil(t, list[0].ReportedBy)

	mr.FastForward(2 * time.Minute)
	_, ok, err = rs.GetPublicList(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "entry expires after ListTTL")
}

func TestRedisStore_Invalidate(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()
	_, err := rs.SetPublicList(ctx, 0, []models.Incident{})
	require.NoError(t, err)
	require.True(t, mr.Exists(publicListKey))

	require.NoError(t, rs.InvalidatePublicList(ctx))
	assert.False(t, mr.Exists(publicListKey))

	gen, err := rs.PublicListGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestRedisStore_FillAfterInvalidateIsDropped(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()

	gen, err := rs.PublicListGeneration(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	// a mutation lands between reading the generation and writing the list
	require.NoError(t, rs.InvalidatePublicList(ctx))
	stale := models.NewTestIncident("id-1", models.StatusVerified, "", time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC))
	stored, err := rs.SetPublicList(ctx, gen, []models.Incident{stale})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists(publicListKey))

	gen, err = rs.PublicListGeneration(ctx)
	require.NoError(t, err)
	stored, err = rs.SetPublicList(ctx, gen, []models.Incident{})
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists(publicListKey))
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	rs, mr := newTestRedis(t)
	require.NoError(t, mr.Set(publicListKey, "not json"))

	_, ok, err := rs.GetPublicList(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisStore_PublishSubscribe(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan incidents.Change, 1)
	require.NoError(t, rs.SubscribeChanges(ctx, zap.NewNop(), func(c incidents.Change) {
		got <- c
	}))

	want := incidents.Change{IncidentID: "id-1", Action: incidents.ActionStatusChanged, Status: "verified"}
	require.NoError(t, rs.PublishChange(ctx, want))

	select {
	case c := <-got:
		assert.Equal(t, want, c)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}
