package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
	"github.com/PratikDhanave/trigger-contract-service/internal/store"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisTombstones_MarkAndLookup(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	ts := store.NewRedisTombstones(client, "test:", time.Minute)

	closed, err := ts.IsClosed(ctx, "tenant1/req-1")
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, ts.MarkClosed(ctx, "tenant1/req-1", pipeline.CloseCompleted))
	require.NoError(t, ts.MarkClosed(ctx, "tenant1/req-1", pipeline.CloseShutdown))

	closed, err = ts.IsClosed(ctx, "tenant1/req-1")
	require.NoError(t, err)
	assert.True(t, closed)

	got, err := mr.Get("test:closed:tenant1/req-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got, "first close reason is kept")
	assert.Equal(t, time.Minute, mr.TTL("test:closed:tenant1/req-1"))

	closed, err = ts.IsClosed(ctx, "tenant1/req-2")
	require.NoError(t, err)
	assert.False(t, closed, "other sessions are independent")
}

func TestRedisTombstones_Expire(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	ts := store.NewRedisTombstones(client, "", time.Second)

	require.NoError(t, ts.MarkClosed(ctx, "k", pipeline.CloseCancelled))
	mr.FastForward(2 * time.Second)

	closed, err := ts.IsClosed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestRedisTombstones_DefaultTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	ts := store.NewRedisTombstones(client, "p:", 0)

	require.NoError(t, ts.MarkClosed(context.Background(), "k", pipeline.CloseTimedOut))
	assert.Equal(t, 10*time.Minute, mr.TTL("p:closed:k"))
}

func TestRedisTombstones_ServerDown(t *testing.T) {
	mr, client := newMiniredis(t)
	ts := store.NewRedisTombstones(client, "", time.Minute)
	mr.Close()

	assert.Error(t, ts.MarkClosed(context.Background(), "k", pipeline.CloseCancelled))
	_, err := ts.IsClosed(context.Background(), "k")
	assert.Error(t, err)
}

// Two managers sharing one Redis behave like two replicas: a session closed on
// one is recognized as closed by the other.
func TestRedisTombstones_LateUpdateOnOtherReplica(t *testing.T) {
	_, client := newMiniredis(t)
	ts := store.NewRedisTombstones(client, "trigger:", time.Minute)

	replicaA := pipeline.NewManager(pipeline.WithTombstones(ts))
	replicaB := pipeline.NewManager(pipeline.WithTombstones(ts))

	s, err := replicaA.Start(context.Background(), "tenant1", pipeline.StartOptions{EventName: "paywall"})
	require.NoError(t, err)

	terminal := models.MustUpdate(models.KindEntitlement, "", models.EntitlementAllowed, models.Payload{})
	r := replicaA.Deliver(context.Background(), "tenant1", s.ID(), terminal)
	require.True(t, r.Terminal)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}

	r = replicaB.Deliver(context.Background(), "tenant1", s.ID(), models.NewJourney(models.Payload{}))
	assert.Equal(t, pipeline.Result{State: pipeline.Closed, Anomaly: pipeline.AnomalyAfterClose}, r)

	r = replicaB.Deliver(context.Background(), "tenant2", s.ID(), models.NewJourney(models.Payload{}))
	assert.Equal(t, pipeline.AnomalyUnknownSession, r.Anomaly, "tombstones are scoped by tenant")
}
