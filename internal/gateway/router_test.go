package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/storyspeak/internal/audio"
	"github.com/windfall/storyspeak/internal/config"
	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
	"github.com/windfall/storyspeak/internal/logger"
)

func newMockRouter() (*Router, *Mock) {
	m := NewMock()
	return NewRouter(m, m, m, m, m, logger.NewNop()), m
}

type scoreEvaluator struct{ score int }

func (s scoreEvaluator) EvaluatePronunciation(context.Context, string, Audio) (*Evaluation, error) {
	return &Evaluation{Score: s.score, Feedback: "ok"}, nil
}

// emptyProvider answers without a value and without an error.
type emptyProvider struct{}

func (emptyProvider) GenerateLesson(context.Context, string, lesson.Level) (*lesson.Lesson, error) {
	return nil, nil
}

func (emptyProvider) GenerateSpeech(context.Context, string) (*Speech, error) {
	return nil, nil
}

func (emptyProvider) EvaluatePronunciation(context.Context, string, Audio) (*Evaluation, error) {
	return nil, nil
}

func TestRouter_GenerateLesson(t *testing.T) {
	r, m := newMockRouter()

	l, err := r.GenerateLesson(context.Background(), "I went to the park.", lesson.LevelBeginner)
	require.NoError(t, err)
	assert.Equal(t, "A Day at the Park (Mock)", l.Title)
	assert.Len(t, l.Sentences, 2)
	assert.Equal(t, 1, m.CallCount(OpGenerateLesson))
}

func TestRouter_EmptyInputNeverReachesProvider(t *testing.T) {
	r, m := newMockRouter()
	ctx := context.Background()

	_, err := r.GenerateLesson(ctx, "   ", lesson.LevelBeginner)
	assert.ErrorIs(t, err, apperrors.Validation(""))

	_, err = r.GenerateSpeech(ctx, "")
	assert.ErrorIs(t, err, apperrors.Validation(""))

	_, err = r.TranscribeAudio(ctx, Audio{MIMEType: "audio/webm"})
	assert.ErrorIs(t, err, apperrors.Validation(""))

	_, err = r.EvaluatePronunciation(ctx, "", Audio{Data: []byte{1}, MIMEType: "audio/webm"})
	assert.ErrorIs(t, err, apperrors.Validation(""))

	_, err = r.EvaluatePronunciation(ctx, "Hello.", Audio{Data: []byte{1}})
	assert.ErrorIs(t, err, apperrors.Validation(""))

	assert.Empty(t, m.Calls())
}

func TestRouter_ProviderFailureIsAIServiceError(t *testing.T) {
	r, m := newMockRouter()
	m.FailWith(OpGenerateLesson, errors.New("quota exceeded"))

	_, err := r.GenerateLesson(context.Background(), "story", lesson.LevelBeginner)
	require.Error(t, err)
	appErr := apperrors.As(err)
	assert.Equal(t, apperrors.ErrAIService, appErr.Code)
	assert.Equal(t, 502, appErr.HTTPStatus())
}

func TestRouter_EmptyProviderResultIsAIServiceError(t *testing.T) {
	m := NewMock()
	p := emptyProvider{}
	r := NewRouter(p, p, m, p, m, logger.NewNop())
	ctx := context.Background()
	rec := Audio{Data: []byte{1}, MIMEType: "audio/webm"}

	l, err := r.GenerateLesson(ctx, "I went to the park.", lesson.LevelBeginner)
	assert.Nil(t, l)
	assert.Equal(t, apperrors.ErrAIService, apperrors.As(err).Code)

	s, err := r.GenerateSpeech(ctx, "Hello.")
	assert.Nil(t, s)
	assert.Equal(t, apperrors.ErrAIService, apperrors.As(err).Code)

	ev, err := r.EvaluatePronunciation(ctx, "Hello.", rec)
	assert.Nil(t, ev)
	assert.Equal(t, apperrors.ErrAIService, apperrors.As(err).Code)
}

func TestRouter_DeadlineIsAITimeout(t *testing.T) {
	r, m := newMockRouter()
	m.Delay(OpTranscribe, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.TranscribeAudio(ctx, Audio{Data: []byte{1, 2}, MIMEType: "audio/webm"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAITimeout, apperrors.As(err).Code)
}

func TestRouter_SpeechAndTranscription(t *testing.T) {
	r, _ := newMockRouter()
	ctx := context.Background()

	s, err := r.GenerateSpeech(ctx, "Hello there.")
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, s.SampleRate)
	assert.NoError(t, audio.ValidatePCM(s.PCM))

	text, err := r.TranscribeAudio(ctx, Audio{Data: []byte{1, 2, 3}, MIMEType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, MockTranscript, text)
}

func TestRouter_EvaluateClampsScore(t *testing.T) {
	m := NewMock()
	r := NewRouter(m, m, m, scoreEvaluator{score: 130}, m, logger.NewNop())

	ev, err := r.EvaluatePronunciation(context.Background(), "Hello.", Audio{Data: []byte{1}, MIMEType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, 100, ev.Score)
}

func TestRouter_Reply(t *testing.T) {
	r, _ := newMockRouter()
	ctx := context.Background()

	greeting, err := r.Reply(ctx, "story", "title", nil)
	require.NoError(t, err)
	assert.Equal(t, MockGreeting, greeting)

	reply, err := r.Reply(ctx, "story", "title", []Turn{{Text: greeting}, {FromUser: true, Text: "It was pasta."}})
	require.NoError(t, err)
	assert.Equal(t, MockReply, reply)
}

func TestMock_RecordsCallsAndClearsErrors(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	m.FailWith(OpEvaluate, errors.New("down"))
	_, err := m.EvaluatePronunciation(ctx, "Hi.", Audio{})
	assert.Error(t, err)

	m.FailWith(OpEvaluate, nil)
	ev, err := m.EvaluatePronunciation(ctx, "Hi.", Audio{})
	require.NoError(t, err)
	assert.Equal(t, MockScore, ev.Score)
	assert.Equal(t, MockFeedback, ev.Feedback)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, MockCall{Op: OpEvaluate, Input: "Hi."}, calls[0])
}

func TestMock_LessonIsCopied(t *testing.T) {
	m := NewMock()
	l, err := m.GenerateLesson(context.Background(), "x", lesson.LevelBeginner)
	require.NoError(t, err)
	l.Title = "changed"

	again, err := m.GenerateLesson(context.Background(), "x", lesson.LevelBeginner)
	require.NoError(t, err)
	assert.Equal(t, "A Day at the Park (Mock)", again.Title)
}

func TestNew_MockProviders(t *testing.T) {
	cfg := &config.Config{
		LessonProvider:     config.ProviderMock,
		SpeechProvider:     config.ProviderMock,
		TranscribeProvider: config.ProviderMock,
		EvaluateProvider:   config.ProviderMock,
		PartnerProvider:    config.ProviderMock,
	}

	r, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	_, ok := r.Lessons.(*Mock)
	assert.True(t, ok)
}

func TestNew_MissingCredentials(t *testing.T) {
	cfg := &config.Config{
		LessonProvider:     config.ProviderOpenAI,
		SpeechProvider:     config.ProviderMock,
		TranscribeProvider: config.ProviderMock,
		EvaluateProvider:   config.ProviderMock,
		PartnerProvider:    config.ProviderMock,
	}
	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)

	cfg.LessonProvider = config.ProviderMock
	cfg.EvaluateProvider = config.ProviderAzure
	_, err = New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestNew_AzureCannotGenerateLessons(t *testing.T) {
	cfg := &config.Config{
		LessonProvider:     config.ProviderAzure,
		SpeechProvider:     config.ProviderMock,
		TranscribeProvider: config.ProviderMock,
		EvaluateProvider:   config.ProviderMock,
		PartnerProvider:    config.ProviderMock,
	}
	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}
