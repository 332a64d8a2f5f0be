package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/logger"
	"github.com/windfall/storyspeak/internal/practice"
	"github.com/windfall/storyspeak/internal/session"
)

const testGreeting = "Hi there! Tell me about your day."

type recordingPublisher struct {
	mu    sync.Mutex
	snaps map[string][]session.Snapshot
}

func (p *recordingPublisher) Publish(id string, snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snaps == nil {
		p.snaps = map[string][]session.Snapshot{}
	}
	p.snaps[id] = append(p.snaps[id], snap)
}

func (p *recordingPublisher) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps[id])
}

func newTestService(t *testing.T) (*SessionService, *gateway.Mock) {
	t.Helper()
	mock := gateway.NewMock()
	svc := NewSessionService(mock, mock, NewMemoryReplyQueue(time.Minute, time.Second), SessionOptions{
		AITimeout:        2 * time.Second,
		IdleTTL:          time.Hour,
		MaxBlanks:        3,
		WordAdvanceDelay: 10 * time.Millisecond,
		ConnectDelay:     10 * time.Millisecond,
		Greeting:         testGreeting,
	}, logger.NewNop())
	svc.newRNG = func() practice.Rand { return practice.NewRand(7) }
	t.Cleanup(svc.Close)
	return svc, mock
}

func recording(n int) gateway.Audio {
	return gateway.Audio{Data: bytes.Repeat([]byte{1}, n), MIMEType: "audio/webm"}
}

// lessonSession returns a session on the lesson screen.
func lessonSession(t *testing.T, svc *SessionService) string {
	t.Helper()
	ctx := context.Background()
	v, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.SetStory(ctx, v.ID, "I went to the park.", "Beginner")
	require.NoError(t, err)
	v, err = svc.Generate(ctx, v.ID, true)
	require.NoError(t, err)
	require.Equal(t, session.StepLesson, v.Step)
	return v.ID
}

func snapshot(t *testing.T, svc *SessionService, id string) session.Snapshot {
	t.Helper()
	snap, err := svc.Snapshot(context.Background(), id)
	require.NoError(t, err)
	return snap
}

func TestSessionService_Lifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, session.StepInput, v.Step)
	assert.Equal(t, 1, svc.Count())

	got, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	require.NoError(t, svc.Delete(ctx, v.ID))
	assert.Equal(t, 0, svc.Count())

	_, err = svc.Get(ctx, v.ID)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.As(err).Code)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.As(svc.Delete(ctx, v.ID)).Code)
}

func TestSessionService_SetStoryRejectsUnknownLevel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.SetStory(ctx, v.ID, "story", "Expert")
	assert.Equal(t, apperrors.ErrValidation, apperrors.As(err).Code)
}

func TestSessionService_GenerateEmptyStoryNeverCallsGateway(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.SetStory(ctx, v.ID, "   ", "")
	require.NoError(t, err)
	_, err = svc.Generate(ctx, v.ID, true)
	assert.ErrorIs(t, err, session.ErrEmptyStory)
	assert.Zero(t, mock.CallCount(gateway.OpGenerateLesson))
}

func TestSessionService_Generate(t *testing.T) {
	svc, mock := newTestService(t)
	id := lessonSession(t, svc)

	snap := snapshot(t, svc, id)
	require.NotNil(t, snap.Lesson)
	assert.Equal(t, "A Day at the Park (Mock)", snap.Lesson.Title)
	assert.Empty(t, snap.Busy)
	assert.Equal(t, 1, mock.CallCount(gateway.OpGenerateLesson))
}

func TestSessionService_GenerateFailureStaysOnInput(t *testing.T) {
	svc, mock := newTestService(t)
	mock.FailWith(gateway.OpGenerateLesson, errors.New("boom"))
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "I ate lunch.", "")

	got, err := svc.Generate(ctx, v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, session.StepInput, got.Step)
	assert.Empty(t, got.Busy)
	assert.Equal(t, session.NoticeGenerateFailed, got.Notice)

	got, err = svc.DismissNotice(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Notice)
}

func TestSessionService_GenerateWhileBusy(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Delay(gateway.OpGenerateLesson, 50*time.Millisecond)
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "I ate lunch.", "")

	got, err := svc.Generate(ctx, v.ID, false)
	require.NoError(t, err)
	assert.Contains(t, got.Busy, session.ActionGenerate)

	_, err = svc.Generate(ctx, v.ID, false)
	assert.ErrorIs(t, err, session.ErrBusy)

	require.Eventually(t, func() bool {
		return snapshot(t, svc, v.ID).Step == session.StepLesson
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mock.CallCount(gateway.OpGenerateLesson))
}

func TestSessionService_GenerateTimeout(t *testing.T) {
	svc, mock := newTestService(t)
	svc.opts.AITimeout = 20 * time.Millisecond
	mock.Delay(gateway.OpGenerateLesson, time.Second)
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "I ate lunch.", "")

	got, err := svc.Generate(ctx, v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, session.StepInput, got.Step)
	assert.Empty(t, got.Busy)
	assert.Equal(t, session.NoticeGenerateFailed, got.Notice)
}

func TestSessionService_InvalidTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.StartPractice(ctx, v.ID)
	assert.Equal(t, apperrors.ErrConflict, apperrors.As(err).Code)
	assert.Equal(t, uint64(0), snapshot(t, svc, v.ID).Version)
}

func TestSessionService_InputTranscription(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "Today", "")

	_, err := svc.StartCapture(ctx, v.ID, session.CaptureInput)
	require.NoError(t, err)
	got, err := svc.StopCapture(ctx, v.ID, recording(600), true)
	require.NoError(t, err)

	assert.Equal(t, "Today "+gateway.MockTranscript, got.Story)
	assert.Empty(t, got.Capture)
	assert.Equal(t, 1, mock.CallCount(gateway.OpTranscribe))
}

func TestSessionService_ShortRecordingDiscarded(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.StartCapture(ctx, v.ID, session.CaptureInput)
	require.NoError(t, err)
	got, err := svc.StopCapture(ctx, v.ID, recording(499), true)
	require.NoError(t, err)

	assert.Empty(t, got.Capture)
	assert.Empty(t, got.Busy)
	assert.Zero(t, mock.CallCount(gateway.OpTranscribe))
}

func TestSessionService_StopCaptureRequiresMIMEType(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.StartCapture(ctx, v.ID, session.CaptureInput)
	require.NoError(t, err)
	_, err = svc.StopCapture(ctx, v.ID, gateway.Audio{Data: recording(800).Data}, true)
	assert.Equal(t, apperrors.ErrValidation, apperrors.As(err).Code)

	assert.Equal(t, session.CaptureInput, snapshot(t, svc, v.ID).Capture)
	assert.Zero(t, mock.CallCount(gateway.OpTranscribe))
}

func TestSessionService_StopCaptureWithoutCapture(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.StopCapture(ctx, v.ID, recording(600), true)
	assert.ErrorIs(t, err, session.ErrNoCapture)
}

func TestSessionService_PracticeEvaluation(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)

	_, err := svc.SelectSentence(ctx, id, 1)
	require.NoError(t, err)
	_, err = svc.StartPractice(ctx, id)
	require.NoError(t, err)
	_, err = svc.StartCapture(ctx, id, session.CapturePractice)
	require.NoError(t, err)

	got, err := svc.StopCapture(ctx, id, recording(1000), true)
	require.NoError(t, err)
	require.NotNil(t, got.Practice)
	require.NotNil(t, got.Practice.Result)
	assert.Equal(t, gateway.MockScore, got.Practice.Result.Score)

	calls := mock.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, gateway.OpEvaluate, last.Op)
	assert.Equal(t, "Children are playing on the swings.", last.Input)
}

func TestSessionService_PracticeEvaluationFailure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.FailWith(gateway.OpEvaluate, errors.New("unavailable"))
	ctx := context.Background()
	id := lessonSession(t, svc)
	_, _ = svc.StartPractice(ctx, id)
	_, _ = svc.StartCapture(ctx, id, session.CapturePractice)

	got, err := svc.StopCapture(ctx, id, recording(1000), true)
	require.NoError(t, err)
	assert.Equal(t, session.StepPractice, got.Step)
	assert.Nil(t, got.Practice.Result)
	assert.Equal(t, session.NoticeEvaluateFailed, got.Notice)
	assert.Empty(t, got.Busy)
}

func TestSessionService_SentenceGame(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)

	got, err := svc.StartSentenceGame(ctx, id, 1)
	require.NoError(t, err)
	require.NotNil(t, got.SentenceGame)

	_, err = svc.CheckSentenceGame(ctx, id, []string{"wrong"})
	require.NoError(t, err)
	_, err = svc.CheckSentenceGame(ctx, id, []string{"again"})
	assert.Error(t, err)

	got, err = svc.NextGameSentence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SentenceGame.Index)

	got, err = svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StepLesson, got.Step)
	require.NotNil(t, got.LastSentenceGame)
	assert.Equal(t, 2, got.LastSentenceGame.Total)
}

func TestSessionService_WordGameAutoAdvance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)

	got, err := svc.StartWordGame(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.WordGame)
	assert.Equal(t, "shining", got.WordGame.Word)

	got, err = svc.AnswerWord(ctx, id, "빛나는")
	require.NoError(t, err)
	require.NotNil(t, got.WordGame.Feedback)
	assert.True(t, got.WordGame.Feedback.IsCorrect)

	_, err = svc.AnswerWord(ctx, id, "밝게")
	assert.ErrorIs(t, err, practice.ErrAnswerLocked)

	require.Eventually(t, func() bool {
		return snapshot(t, svc, id).WordGame.Index == 1
	}, time.Second, 5*time.Millisecond)
	snap := snapshot(t, svc, id)
	assert.Equal(t, "brightly", snap.WordGame.Word)
	assert.Nil(t, snap.WordGame.Feedback)
	assert.Equal(t, 1, snap.WordGame.Score)
}

func TestSessionService_WordGameBackStopsAdvance(t *testing.T) {
	svc, _ := newTestService(t)
	svc.opts.WordAdvanceDelay = 30 * time.Millisecond
	ctx := context.Background()
	id := lessonSession(t, svc)

	_, _ = svc.StartWordGame(ctx, id)
	_, err := svc.AnswerWord(ctx, id, "nope")
	require.NoError(t, err)
	got, err := svc.Back(ctx, id)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	snap := snapshot(t, svc, id)
	assert.Equal(t, session.StepLesson, snap.Step)
	assert.Equal(t, got.Version, snap.Version)
}

func TestSessionService_Roleplay(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)

	got, err := svc.StartRoleplay(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Roleplay)
	assert.True(t, got.Roleplay.Connecting)

	_, _, err = svc.SendMessage(ctx, id, "hello")
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return !snapshot(t, svc, id).Roleplay.Connecting
	}, time.Second, 5*time.Millisecond)
	snap := snapshot(t, svc, id)
	require.Len(t, snap.Roleplay.Messages, 1)
	assert.Equal(t, gateway.MockGreeting, snap.Roleplay.Messages[0].Text)

	requestID, got, err := svc.SendMessage(ctx, id, "I had pizza.")
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
	assert.Len(t, got.Roleplay.Messages, 2)

	reply, err := svc.WaitReply(ctx, id, requestID)
	require.NoError(t, err)
	assert.Equal(t, gateway.MockReply, reply.Text)
	assert.Empty(t, reply.Error)

	require.Eventually(t, func() bool {
		return len(snapshot(t, svc, id).Roleplay.Messages) == 3
	}, time.Second, 5*time.Millisecond)
	msgs := snapshot(t, svc, id).Roleplay.Messages
	assert.Equal(t, session.RoleUser, msgs[1].Role)
	assert.Equal(t, session.RoleAI, msgs[2].Role)
	assert.Equal(t, "I had pizza.", mock.Calls()[len(mock.Calls())-1].Input)
}

func TestSessionService_RoleplayGreetingFallback(t *testing.T) {
	svc, mock := newTestService(t)
	mock.FailWith(gateway.OpPartnerReply, errors.New("down"))
	ctx := context.Background()
	id := lessonSession(t, svc)

	_, err := svc.StartRoleplay(ctx, id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !snapshot(t, svc, id).Roleplay.Connecting
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, testGreeting, snapshot(t, svc, id).Roleplay.Messages[0].Text)

	requestID, _, err := svc.SendMessage(ctx, id, "hello")
	require.NoError(t, err)
	reply, err := svc.WaitReply(ctx, id, requestID)
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Error)

	require.Eventually(t, func() bool {
		return snapshot(t, svc, id).Notice == session.NoticeReplyFailed
	}, time.Second, 5*time.Millisecond)
}

func TestSessionService_RoleplayLeftBeforeConnect(t *testing.T) {
	svc, _ := newTestService(t)
	svc.opts.ConnectDelay = 30 * time.Millisecond
	ctx := context.Background()
	id := lessonSession(t, svc)

	_, err := svc.StartRoleplay(ctx, id)
	require.NoError(t, err)
	got, err := svc.Back(ctx, id)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	snap := snapshot(t, svc, id)
	assert.Equal(t, session.StepLesson, snap.Step)
	assert.Equal(t, got.Version, snap.Version)
}

func TestSessionService_RoleplayVoiceMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)

	_, _ = svc.StartRoleplay(ctx, id)
	require.Eventually(t, func() bool {
		return !snapshot(t, svc, id).Roleplay.Connecting
	}, time.Second, 5*time.Millisecond)

	_, err := svc.StartCapture(ctx, id, session.CaptureRoleplay)
	assert.ErrorIs(t, err, session.ErrMicOff)

	_, err = svc.SetMic(ctx, id, true)
	require.NoError(t, err)
	_, err = svc.StartCapture(ctx, id, session.CaptureRoleplay)
	require.NoError(t, err)
	_, err = svc.StopCapture(ctx, id, recording(800), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(snapshot(t, svc, id).Roleplay.Messages) == 3
	}, time.Second, 5*time.Millisecond)
	msgs := snapshot(t, svc, id).Roleplay.Messages
	assert.Equal(t, gateway.MockTranscript, msgs[1].Text)
	assert.Equal(t, gateway.MockReply, msgs[2].Text)
}

func TestSessionService_FailCapture(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.StartCapture(ctx, v.ID, session.CaptureInput)

	got, err := svc.FailCapture(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Capture)
	assert.Equal(t, session.NoticeMicPermission, got.Notice)
}

func TestSessionService_WaitReplyUnknownRequest(t *testing.T) {
	svc, _ := newTestService(t)
	svc.replies = NewMemoryReplyQueue(time.Minute, 20*time.Millisecond)
	ctx := context.Background()
	v, _ := svc.Create(ctx)

	_, err := svc.WaitReply(ctx, v.ID, "req_missing")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.As(err).Code)

	_, err = svc.WaitReply(ctx, v.ID, "")
	assert.Equal(t, apperrors.ErrValidation, apperrors.As(err).Code)
}

func TestSessionService_WaitReplyBelongsToSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := lessonSession(t, svc)
	other, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.StartRoleplay(ctx, id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !snapshot(t, svc, id).Roleplay.Connecting
	}, time.Second, 5*time.Millisecond)

	requestID, _, err := svc.SendMessage(ctx, id, "I had pizza.")
	require.NoError(t, err)

	_, err = svc.WaitReply(ctx, other.ID, requestID)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.As(err).Code)

	reply, err := svc.WaitReply(ctx, id, requestID)
	require.NoError(t, err)
	assert.Equal(t, gateway.MockReply, reply.Text)

	_, err = svc.WaitReply(ctx, id, requestID)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.As(err).Code)
}

func TestSessionService_PublishesSnapshots(t *testing.T) {
	svc, _ := newTestService(t)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	ctx := context.Background()

	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "I ate lunch.", "")
	_, err := svc.Generate(ctx, v.ID, true)
	require.NoError(t, err)

	// story, generate begin, generate complete
	assert.Equal(t, 3, pub.count(v.ID))

	_, _ = svc.StartPractice(ctx, v.ID)
	_, _ = svc.StartPractice(ctx, v.ID)
	assert.Equal(t, 4, pub.count(v.ID))
}

func TestSessionService_DeleteCancelsInFlightWork(t *testing.T) {
	svc, mock := newTestService(t)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	mock.Delay(gateway.OpGenerateLesson, time.Second)
	ctx := context.Background()
	v, _ := svc.Create(ctx)
	_, _ = svc.SetStory(ctx, v.ID, "I ate lunch.", "")

	_, err := svc.Generate(ctx, v.ID, false)
	require.NoError(t, err)
	before := pub.count(v.ID)
	require.NoError(t, svc.Delete(ctx, v.ID))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, pub.count(v.ID))
}

func TestSessionService_Sweep(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	stale, _ := svc.Create(ctx)

	base := time.Now()
	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh, _ := svc.Create(ctx)

	assert.Equal(t, 1, svc.Sweep(ctx))
	_, err := svc.Get(ctx, stale.ID)
	assert.Error(t, err)
	_, err = svc.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSessionService_RunSweeperStops(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
