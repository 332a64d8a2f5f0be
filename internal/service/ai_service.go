package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/lesson"
)

// AIService exposes the gateway operations directly, without a session.
type AIService struct {
	gw      gateway.Gateway
	timeout time.Duration
	log     zerolog.Logger
}

// NewAIService creates a new AI service.
func NewAIService(gw gateway.Gateway, timeout time.Duration, log zerolog.Logger) *AIService {
	return &AIService{gw: gw, timeout: timeout, log: log}
}

// call runs fn as a gateway task bound to ctx.
func call[T any](ctx context.Context, s *AIService, fn func(ctx context.Context) (T, error)) (T, error) {
	res := gateway.Start(ctx, s.timeout, fn).Wait(ctx)
	return res.Value, res.Err
}

// GenerateLesson builds a lesson from a story at the named level.
func (s *AIService) GenerateLesson(ctx context.Context, story, level string) (*lesson.Lesson, error) {
	if err := gateway.RequireText("story", story); err != nil {
		return nil, err
	}
	lvl, err := lesson.ParseLevel(level)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	l, err := call(ctx, s, func(ctx context.Context) (*lesson.Lesson, error) {
		return s.gw.GenerateLesson(ctx, story, lvl)
	})
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperrors.AIService("lesson generator returned no lesson", nil)
	}

	s.log.Info().
		Str("title", l.Title).
		Int("sentences", len(l.Sentences)).
		Msg("Lesson generated")
	return l, nil
}

// GenerateSpeech synthesizes text as PCM.
func (s *AIService) GenerateSpeech(ctx context.Context, text string) (*gateway.Speech, error) {
	if err := gateway.RequireText("text", text); err != nil {
		return nil, err
	}
	return call(ctx, s, func(ctx context.Context) (*gateway.Speech, error) {
		return s.gw.GenerateSpeech(ctx, text)
	})
}

// TranscribeAudio converts a recording to text.
func (s *AIService) TranscribeAudio(ctx context.Context, rec gateway.Audio) (string, error) {
	if err := gateway.ValidateAudio(rec); err != nil {
		return "", err
	}
	return call(ctx, s, func(ctx context.Context) (string, error) {
		return s.gw.TranscribeAudio(ctx, rec)
	})
}

// EvaluatePronunciation scores a recording against reference.
func (s *AIService) EvaluatePronunciation(ctx context.Context, reference string, rec gateway.Audio) (*gateway.Evaluation, error) {
	if err := gateway.RequireText("reference text", reference); err != nil {
		return nil, err
	}
	if err := gateway.ValidateAudio(rec); err != nil {
		return nil, err
	}
	return call(ctx, s, func(ctx context.Context) (*gateway.Evaluation, error) {
		return s.gw.EvaluatePronunciation(ctx, reference, rec)
	})
}
