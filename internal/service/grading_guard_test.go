package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestGradingGuardRejectsSecondAttemptInProcess(t *testing.T) {
	guard := NewGradingGuard(nil, "", 0, testLogger())
	ctx := context.Background()

	lease, err := guard.Acquire(ctx, 1)
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, 1)
	require.ErrorIs(t, err, ErrGradingInProgress)

	other, err := guard.Acquire(ctx, 2)
	require.NoError(t, err)
	other.Release(ctx)

	lease.Set(GradingStateGrading)
	state, ok := guard.State(1)
	require.True(t, ok)
	require.Equal(t, GradingStateGrading, state)

	lease.Release(ctx)
	lease.Release(ctx)
	_, ok = guard.State(1)
	require.False(t, ok)

	again, err := guard.Acquire(ctx, 1)
	require.NoError(t, err)
	again.Release(ctx)
}

func TestGradingGuardSerializesReplicasThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx := context.Background()
	replicaA := NewGradingGuard(client, "gema", time.Minute, testLogger())
	replicaB := NewGradingGuard(client, "gema", time.Minute, testLogger())

	lease, err := replicaA.Acquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, server.Exists("gema:grading:lock:7"))

	_, err = replicaB.Acquire(ctx, 7)
	require.ErrorIs(t, err, ErrGradingInProgress)
	_, tracked := replicaB.State(7)
	require.False(t, tracked, "rejected acquisition must not leave a marker behind")

	lease.Release(ctx)
	require.False(t, server.Exists("gema:grading:lock:7"))

	leaseB, err := replicaB.Acquire(ctx, 7)
	require.NoError(t, err)
	leaseB.Release(ctx)
}

func TestGradingGuardReleaseKeepsForeignLock(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx := context.Background()
	guard := NewGradingGuard(client, "gema", time.Second, testLogger())

	lease, err := guard.Acquire(ctx, 9)
	require.NoError(t, err)

	// the lock expired and another replica took it over
	server.FastForward(2 * time.Second)
	require.NoError(t, server.Set("gema:grading:lock:9", "other-token"))

	lease.Release(ctx)
	value, err := server.Get("gema:grading:lock:9")
	require.NoError(t, err)
	require.Equal(t, "other-token", value)
}
