package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/storyspeak/internal/client"
	apperrors "github.com/windfall/storyspeak/internal/errors"
)

func TestMemoryReplyQueue_PushThenWait(t *testing.T) {
	q := NewMemoryReplyQueue(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, PartnerReply{RequestID: "r1", Text: "hello"}))
	reply, err := q.Wait(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)

	q.mu.Lock()
	assert.Empty(t, q.slots)
	q.mu.Unlock()
}

func TestMemoryReplyQueue_WaitThenPush(t *testing.T) {
	q := NewMemoryReplyQueue(time.Minute, time.Second)
	ctx := context.Background()

	got := make(chan *PartnerReply, 1)
	go func() {
		reply, err := q.Wait(ctx, "r2")
		assert.NoError(t, err)
		got <- reply
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(ctx, PartnerReply{RequestID: "r2", Error: "failed"}))

	select {
	case reply := <-got:
		assert.Equal(t, "failed", reply.Error)
	case <-time.After(time.Second):
		t.Fatal("reply not delivered")
	}
}

func TestMemoryReplyQueue_DuplicatePush(t *testing.T) {
	q := NewMemoryReplyQueue(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, PartnerReply{RequestID: "r3"}))
	err := q.Push(ctx, PartnerReply{RequestID: "r3"})
	assert.Equal(t, apperrors.ErrConflict, apperrors.As(err).Code)
}

func TestMemoryReplyQueue_Timeout(t *testing.T) {
	q := NewMemoryReplyQueue(time.Minute, 10*time.Millisecond)

	_, err := q.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReplyNotReady)

	q.mu.Lock()
	assert.Empty(t, q.slots)
	q.mu.Unlock()
}

func TestMemoryReplyQueue_Canceled(t *testing.T) {
	q := NewMemoryReplyQueue(time.Minute, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Wait(ctx, "r4")
	assert.ErrorIs(t, err, context.Canceled)

	q.mu.Lock()
	assert.Empty(t, q.slots)
	q.mu.Unlock()
}

func TestMemoryReplyQueue_ExpiresUndelivered(t *testing.T) {
	q := NewMemoryReplyQueue(10*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, PartnerReply{RequestID: "r5", Text: "late"}))
	time.Sleep(30 * time.Millisecond)

	_, err := q.Wait(ctx, "r5")
	assert.ErrorIs(t, err, ErrReplyNotReady)
}

// TestRedisReplyQueue runs against a live Redis when REDIS_URL is set.
func TestRedisReplyQueue(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rc, err := client.NewRedisClient(url)
	require.NoError(t, err)
	defer rc.Close()

	q := NewRedisReplyQueue(rc, time.Minute, time.Second)
	ctx := context.Background()
	id := uuid.New().String()

	require.NoError(t, q.Push(ctx, PartnerReply{RequestID: id, Text: "from redis"}))
	reply, err := q.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "from redis", reply.Text)

	_, err = q.Wait(ctx, id)
	assert.ErrorIs(t, err, ErrReplyNotReady)
}
