package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/windfall/storyspeak/internal/audio"
	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
)

// openaiAPI is the part of client.OpenAIClient the provider uses.
type openaiAPI interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
	ChatWithHistory(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
	Speech(ctx context.Context, text string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte, fileName string) (string, error)
}

// OpenAIProvider implements Gateway and Partner with OpenAI chat, speech
// and Whisper.
type OpenAIProvider struct {
	api openaiAPI
}

// NewOpenAIProvider creates an OpenAI provider over api.
func NewOpenAIProvider(api openaiAPI) *OpenAIProvider {
	return &OpenAIProvider{api: api}
}

func (p *OpenAIProvider) GenerateLesson(ctx context.Context, story string, level lesson.Level) (*lesson.Lesson, error) {
	raw, err := p.api.ChatJSON(ctx, lesson.GeneratorInstruction, lesson.GeneratorPrompt(story, level))
	if err != nil {
		return nil, mapOpenAIError(OpGenerateLesson, err)
	}
	l, err := lesson.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid lesson response: %w", err)
	}
	return l, nil
}

func (p *OpenAIProvider) GenerateSpeech(ctx context.Context, text string) (*Speech, error) {
	pcm, err := p.api.Speech(ctx, text)
	if err != nil {
		return nil, mapOpenAIError(OpGenerateSpeech, err)
	}
	return &Speech{PCM: pcm, SampleRate: audio.SampleRate}, nil
}

func (p *OpenAIProvider) TranscribeAudio(ctx context.Context, a Audio) (string, error) {
	text, err := p.api.Transcribe(ctx, a.Data, "audio"+audio.Extension(a.MIMEType))
	if err != nil {
		return "", mapOpenAIError(OpTranscribe, err)
	}
	return strings.TrimSpace(text), nil
}

// EvaluatePronunciation transcribes the recording and asks the chat model
// to score it against the reference.
func (p *OpenAIProvider) EvaluatePronunciation(ctx context.Context, reference string, a Audio) (*Evaluation, error) {
	heard, err := p.TranscribeAudio(ctx, a)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("%s\n\nWhat the speech recognizer heard: %q", lesson.EvaluationPrompt(reference), heard)
	raw, err := p.api.ChatJSON(ctx, "You are a strict but kind English pronunciation coach.", user)
	if err != nil {
		return nil, mapOpenAIError(OpEvaluate, err)
	}
	return decodeEvaluation(raw)
}

func (p *OpenAIProvider) Reply(ctx context.Context, story, title string, history []Turn) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: lesson.RoleplayContext(story, title)},
	}
	if len(history) == 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: openingRequest})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleAssistant
		if t.FromUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	text, err := p.api.ChatWithHistory(ctx, msgs)
	if err != nil {
		return "", mapOpenAIError(OpPartnerReply, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty partner reply")
	}
	return text, nil
}

// mapOpenAIError tags OpenAI API failures with their HTTP status.
func mapOpenAIError(op Op, err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := string(op) + " failed"
	if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		msg = string(op) + " rate limited"
	}
	return apperrors.AIService(msg, err).WithDetails(map[string]any{
		"provider": "openai",
		"status":   apiErr.HTTPStatusCode,
	})
}
