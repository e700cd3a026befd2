//go:build integration

package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/internal/hrsync/dedupe"
	"sellsync/pkg/testutil/containers"
)

func TestRedisDeduper(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	d := dedupe.NewRedis(rc.Client, time.Hour)
	fp := dedupe.Fingerprint([]byte(`{"event":"USER_CREATED","data":{"id":7}}`))

	seen, err := d.Seen(ctx, fp)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, fp))

	seen, err = d.Seen(ctx, fp)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, rc.FlushAll(ctx))

	seen, err = d.Seen(ctx, fp)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDeduper_MarkedKeysExpire(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	d := dedupe.NewRedis(rc.Client, time.Second)
	fp := dedupe.Fingerprint([]byte("short lived"))
	require.NoError(t, d.Mark(ctx, fp))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		seen, err := d.Seen(ctx, fp)
		require.NoError(t, err)
		if !seen {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("fingerprint never expired")
}
