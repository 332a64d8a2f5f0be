// Package gateway is the boundary to the AI services: lesson generation,
// speech synthesis, transcription, pronunciation scoring and the roleplay
// partner.
package gateway

import (
	"context"
	"errors"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
)

// Speech is synthesized audio: 16-bit little-endian mono PCM.
type Speech struct {
	PCM        []byte
	SampleRate int
}

// Audio is a recorded blob and its MIME type.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Evaluation is a pronunciation score from 0 to 100 with feedback.
type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Turn is one line of roleplay history.
type Turn struct {
	FromUser bool
	Text     string
}

// LessonGenerator turns a story into a lesson.
type LessonGenerator interface {
	GenerateLesson(ctx context.Context, story string, level lesson.Level) (*lesson.Lesson, error)
}

// SpeechSynthesizer renders text as speech.
type SpeechSynthesizer interface {
	GenerateSpeech(ctx context.Context, text string) (*Speech, error)
}

// Transcriber converts recorded speech to text. An empty transcript is not
// an error.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio Audio) (string, error)
}

// Evaluator scores a recording against a reference sentence.
type Evaluator interface {
	EvaluatePronunciation(ctx context.Context, reference string, audio Audio) (*Evaluation, error)
}

// Gateway is the full set of request/response AI operations.
type Gateway interface {
	LessonGenerator
	SpeechSynthesizer
	Transcriber
	Evaluator
}

// Partner produces the AI side of a roleplay conversation. An empty
// history asks for the opening greeting.
type Partner interface {
	Reply(ctx context.Context, story, title string, history []Turn) (string, error)
}

// Op names a gateway operation in logs and errors.
type Op string

const (
	OpGenerateLesson Op = "generate_lesson"
	OpGenerateSpeech Op = "generate_speech"
	OpTranscribe     Op = "transcribe_audio"
	OpEvaluate       Op = "evaluate_pronunciation"
	OpPartnerReply   Op = "partner_reply"
)

// wrapError maps a provider error to an application error. Deadline
// errors become AI_TIMEOUT and application errors pass through.
func wrapError(op Op, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.AITimeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.AIService(string(op)+" canceled", err)
	}
	return apperrors.AIService(string(op)+" failed", err)
}

// ClampScore bounds a score to 0..100.
func ClampScore(score float64) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(score + 0.5)
	}
}
