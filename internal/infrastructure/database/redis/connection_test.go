package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/testutil"
)

func TestJSONRoundTrip(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	c := Wrap(rdb)
	ctx := context.Background()

	type preview struct {
		Code string `json:"code"`
	}
	require.NoError(t, c.SetJSON(ctx, "k", preview{Code: "SAVE10"}, time.Minute))

	var got preview
	require.NoError(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, "SAVE10", got.Code)

	require.NoError(t, c.Del(ctx, "k"))
	assert.ErrorIs(t, c.GetJSON(ctx, "k", &got), ErrNotFound)
}

func TestLock(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	c := Wrap(rdb)
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "lock:1", time.Second)
	require.NoError(t, err)

	_, err = c.Lock(ctx, "lock:1", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, unlock(ctx))
	again, err := c.Lock(ctx, "lock:1", time.Second)
	require.NoError(t, err)

	// an expired lock taken over by someone else is not released by the old owner
	mr.FastForward(2 * time.Second)
	_, err = c.Lock(ctx, "lock:1", time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
	assert.True(t, mr.Exists("lock:1"))
}
