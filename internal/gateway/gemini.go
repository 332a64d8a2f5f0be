package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/windfall/storyspeak/internal/audio"
	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
)

// geminiAPI is the part of client.GeminiClient the provider uses.
type geminiAPI interface {
	GenerateJSON(ctx context.Context, model, system string, parts []*genai.Part, schema *genai.Schema) (string, error)
	Chat(ctx context.Context, model, system string, history []*genai.Content) (string, error)
	Transcribe(ctx context.Context, model string, audio []byte, mimeType, instruction string) (string, error)
	Synthesize(ctx context.Context, model, voice, prompt string) ([]byte, error)
}

// GeminiConfig names the models and voice the provider uses.
type GeminiConfig struct {
	TextModel   string
	SpeechModel string
	Voice       string
}

// GeminiProvider implements Gateway and Partner with Gemini.
type GeminiProvider struct {
	api geminiAPI
	cfg GeminiConfig
}

// NewGeminiProvider creates a Gemini provider over api.
func NewGeminiProvider(api geminiAPI, cfg GeminiConfig) *GeminiProvider {
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Kore"
	}
	return &GeminiProvider{api: api, cfg: cfg}
}

func (p *GeminiProvider) GenerateLesson(ctx context.Context, story string, level lesson.Level) (*lesson.Lesson, error) {
	parts := []*genai.Part{{Text: lesson.GeneratorPrompt(story, level)}}
	raw, err := p.api.GenerateJSON(ctx, p.cfg.TextModel, lesson.GeneratorInstruction, parts, buildGeminiSchema(lesson.LessonSchema.Definition))
	if err != nil {
		return nil, mapGeminiError(OpGenerateLesson, err)
	}
	l, err := lesson.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid lesson response: %w", err)
	}
	return l, nil
}

func (p *GeminiProvider) GenerateSpeech(ctx context.Context, text string) (*Speech, error) {
	pcm, err := p.api.Synthesize(ctx, p.cfg.SpeechModel, p.cfg.Voice, lesson.SpeechPrompt(text))
	if err != nil {
		return nil, mapGeminiError(OpGenerateSpeech, err)
	}
	return &Speech{PCM: pcm, SampleRate: audio.SampleRate}, nil
}

func (p *GeminiProvider) TranscribeAudio(ctx context.Context, a Audio) (string, error) {
	text, err := p.api.Transcribe(ctx, p.cfg.TextModel, a.Data, a.MIMEType, lesson.TranscribeInstruction)
	if err != nil {
		return "", mapGeminiError(OpTranscribe, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *GeminiProvider) EvaluatePronunciation(ctx context.Context, reference string, a Audio) (*Evaluation, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: a.Data, MIMEType: a.MIMEType}},
		{Text: lesson.EvaluationPrompt(reference)},
	}
	raw, err := p.api.GenerateJSON(ctx, p.cfg.TextModel, "", parts, buildGeminiSchema(lesson.EvaluationSchema.Definition))
	if err != nil {
		return nil, mapGeminiError(OpEvaluate, err)
	}
	return decodeEvaluation(raw)
}

func (p *GeminiProvider) Reply(ctx context.Context, story, title string, history []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	if len(history) == 0 {
		contents = append(contents, &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: openingRequest}},
		})
	}
	for _, t := range history {
		role := "model"
		if t.FromUser {
			role = "user"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Text}}})
	}

	text, err := p.api.Chat(ctx, p.cfg.TextModel, lesson.RoleplayContext(story, title), contents)
	if err != nil {
		return "", mapGeminiError(OpPartnerReply, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty partner reply")
	}
	return text, nil
}

// mapGeminiError tags Gemini API failures with their HTTP status. Other
// errors are returned unchanged.
func mapGeminiError(op Op, err error) error {
	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := string(op) + " failed"
	if apiErr.Code == http.StatusTooManyRequests {
		msg = string(op) + " rate limited"
	}
	return apperrors.AIService(msg, err).WithDetails(map[string]any{
		"provider": "gemini",
		"status":   apiErr.Code,
	})
}

// openingRequest asks the partner for its first line.
const openingRequest = "Start the conversation with a short, friendly greeting and one question about my story."

func decodeEvaluation(raw string) (*Evaluation, error) {
	if err := lesson.EvaluationSchema.Validate([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid evaluation response: %w", err)
	}
	var v struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &Evaluation{Score: ClampScore(v.Score), Feedback: v.Feedback}, nil
}

// buildGeminiSchema converts a JSON Schema definition map to a genai.Schema.
func buildGeminiSchema(def map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := def["type"].(string); ok {
		schema.Type = mapGeminiType(t)
	}
	if desc, ok := def["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := def["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for k, v := range props {
			if propDef, ok := v.(map[string]any); ok {
				schema.Properties[k] = buildGeminiSchema(propDef)
			}
		}
	}

	if req, ok := def["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := def["items"].(map[string]any); ok {
		schema.Items = buildGeminiSchema(items)
	}

	return schema
}

func mapGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
