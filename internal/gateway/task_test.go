package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/windfall/storyspeak/internal/errors"
)

func TestTask_Success(t *testing.T) {
	task := Start(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "done", nil
	})

	res := task.Wait(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, "done", res.Value)

	again, ok := task.Result()
	assert.True(t, ok)
	assert.Equal(t, "done", again.Value)
}

func TestTask_TimeoutBecomesAITimeout(t *testing.T) {
	task := Start(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	res := task.Wait(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, apperrors.ErrAITimeout, apperrors.As(res.Err).Code)
}

func TestTask_Cancel(t *testing.T) {
	started := make(chan struct{})
	task := Start(context.Background(), 0, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started

	task.Cancel()
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not finish after cancel")
	}
	res, ok := task.Result()
	require.True(t, ok)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestTask_WaitContextEnds(t *testing.T) {
	task := Start(context.Background(), 0, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := task.Wait(ctx)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	<-task.Done()
}

func TestTask_PanicRecovered(t *testing.T) {
	task := Start(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		panic("boom")
	})

	res := task.Wait(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, apperrors.ErrInternal, apperrors.As(res.Err).Code)
}

func TestTask_ResultBeforeDone(t *testing.T) {
	release := make(chan struct{})
	task := Start(context.Background(), 0, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	_, ok := task.Result()
	assert.False(t, ok)

	close(release)
	res := task.Wait(context.Background())
	assert.Equal(t, 1, res.Value)
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(OpEvaluate, nil))

	appErr := apperrors.Validation("bad")
	assert.Same(t, appErr, wrapError(OpEvaluate, appErr))

	assert.Equal(t, apperrors.ErrAITimeout, apperrors.As(wrapError(OpEvaluate, context.DeadlineExceeded)).Code)

	wrapped := apperrors.As(wrapError(OpTranscribe, errors.New("upstream")))
	assert.Equal(t, apperrors.ErrAIService, wrapped.Code)
	assert.Equal(t, "transcribe_audio failed", wrapped.Message)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-5))
	assert.Equal(t, 100, ClampScore(140))
	assert.Equal(t, 85, ClampScore(85))
	assert.Equal(t, 86, ClampScore(85.5))
	assert.Equal(t, 72, ClampScore(72.3))
}
