package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
)

// Router sends each operation to its configured provider. It validates
// input before any provider is called, logs failures and normalizes
// errors and scores.
type Router struct {
	Lessons     LessonGenerator
	Speech      SpeechSynthesizer
	Transcriber Transcriber
	Evaluator   Evaluator
	Partner     Partner

	log zerolog.Logger
}

// NewRouter creates a router. Every provider must be non-nil.
func NewRouter(lessons LessonGenerator, speech SpeechSynthesizer, transcriber Transcriber, evaluator Evaluator, partner Partner, log zerolog.Logger) *Router {
	return &Router{
		Lessons:     lessons,
		Speech:      speech,
		Transcriber: transcriber,
		Evaluator:   evaluator,
		Partner:     partner,
		log:         log,
	}
}

func (r *Router) observe(op Op, start time.Time, err error) error {
	if err == nil {
		r.log.Debug().Str("op", string(op)).Dur("duration", time.Since(start)).Msg("gateway call completed")
		return nil
	}
	err = wrapError(op, err)
	r.log.Error().Err(err).Str("op", string(op)).Dur("duration", time.Since(start)).Msg("gateway call failed")
	return err
}

func (r *Router) GenerateLesson(ctx context.Context, story string, level lesson.Level) (*lesson.Lesson, error) {
	if err := RequireText("story", story); err != nil {
		return nil, err
	}
	start := time.Now()
	l, err := r.Lessons.GenerateLesson(ctx, story, level)
	if err == nil && l == nil {
		err = errEmptyResult
	}
	if err = r.observe(OpGenerateLesson, start, err); err != nil {
		return nil, err
	}
	l.Normalize()
	return l, nil
}

func (r *Router) GenerateSpeech(ctx context.Context, text string) (*Speech, error) {
	if err := RequireText("text", text); err != nil {
		return nil, err
	}
	start := time.Now()
	s, err := r.Speech.GenerateSpeech(ctx, text)
	if err == nil && s == nil {
		err = errEmptyResult
	}
	if err = r.observe(OpGenerateSpeech, start, err); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Router) TranscribeAudio(ctx context.Context, a Audio) (string, error) {
	if err := ValidateAudio(a); err != nil {
		return "", err
	}
	start := time.Now()
	text, err := r.Transcriber.TranscribeAudio(ctx, a)
	if err = r.observe(OpTranscribe, start, err); err != nil {
		return "", err
	}
	return text, nil
}

func (r *Router) EvaluatePronunciation(ctx context.Context, reference string, a Audio) (*Evaluation, error) {
	if err := RequireText("reference text", reference); err != nil {
		return nil, err
	}
	if err := ValidateAudio(a); err != nil {
		return nil, err
	}
	start := time.Now()
	ev, err := r.Evaluator.EvaluatePronunciation(ctx, reference, a)
	if err == nil && ev == nil {
		err = errEmptyResult
	}
	if err = r.observe(OpEvaluate, start, err); err != nil {
		return nil, err
	}
	ev.Score = ClampScore(float64(ev.Score))
	return ev, nil
}

func (r *Router) Reply(ctx context.Context, story, title string, history []Turn) (string, error) {
	start := time.Now()
	text, err := r.Partner.Reply(ctx, story, title, history)
	if err = r.observe(OpPartnerReply, start, err); err != nil {
		return "", err
	}
	return text, nil
}

// errEmptyResult reports a provider that returned neither a value nor an
// error.
var errEmptyResult = apperrors.AIService("provider returned no result", nil)

// RequireText rejects blank text input.
func RequireText(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Validation(name + " is required")
	}
	return nil
}

// ValidateAudio rejects recordings without data or a MIME type.
func ValidateAudio(a Audio) error {
	if len(a.Data) == 0 {
		return apperrors.Validation("audio is required")
	}
	if a.MIMEType == "" {
		return apperrors.Validation("audio mime type is required")
	}
	return nil
}
