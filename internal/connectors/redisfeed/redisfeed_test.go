package redisfeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/cyclearb/internal/types"
)

func setup(t *testing.T) (*Publisher, *Consumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	pub := NewPublisherWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "reports", "latest", 100)
	con := NewConsumerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "reports", "latest")
	t.Cleanup(func() {
		_ = pub.Close()
		_ = con.Close()
	})
	return pub, con, mr
}

func report(pass uint64, found bool) types.Report {
	r := types.Report{Pass: pass, Found: found, Reason: "no cycle", Ts: time.Unix(1700000000, 0).UTC()}
	if found {
		r.Source = "USDC"
		r.Cycle = []types.Token{"USDC", "WETH", "USDC"}
		r.TheoreticalGain = 0.01
		r.Reason = ""
	}
	return r
}

func TestPublishAndRead(t *testing.T) {
	pub, con, mr := setup(t)
	ctx := context.Background()

	_, err := con.Latest(ctx)
	assert.True(t, errors.Is(err, redis.Nil))

	require.NoError(t, pub.Report(ctx, report(1, false)))
	require.NoError(t, pub.Report(ctx, report(2, true)))

	latest, err := con.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, report(2, true), latest)

	recent, _, err := con.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].Pass)
	assert.Equal(t, uint64(1), recent[1].Pass)

	recent, _, err = con.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	assert.True(t, mr.Exists("latest"))
}

func TestFollow(t *testing.T) {
	pub, con, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, pub.Report(ctx, report(1, false)))
	require.NoError(t, pub.Report(ctx, report(2, true)))

	out := make(chan types.Report, 2)
	done := make(chan error, 1)
	go func() { done <- con.Follow(ctx, "0", out) }()

	assert.Equal(t, uint64(1), (<-out).Pass)
	assert.Equal(t, uint64(2), (<-out).Pass)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Follow did not stop on context cancellation")
	}
}

func TestRecent_FollowResumesAfterBacklog(t *testing.T) {
	pub, con, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, last, err := con.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "0", last)

	require.NoError(t, pub.Report(ctx, report(1, false)))
	backlog, last, err := con.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, backlog, 1)

	// published between the backlog read and the first XREAD
	require.NoError(t, pub.Report(ctx, report(2, true)))

	out := make(chan types.Report, 2)
	go func() { _ = con.Follow(ctx, last, out) }()
	select {
	case r := <-out:
		assert.Equal(t, uint64(2), r.Pass)
	case <-ctx.Done():
		t.Fatal("report published after the backlog was lost")
	}
}

func TestPublish_RedisDown(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	pub := NewPublisherWithClient(redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}), "reports", "latest", 100)
	defer pub.Close()
	assert.Error(t, pub.Report(context.Background(), report(1, false)))
}
