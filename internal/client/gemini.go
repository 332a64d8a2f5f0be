package client

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiConfig selects the Gemini backend. An API key uses the Gemini
// Developer API; otherwise the client talks to Vertex AI with application
// default credentials or the given service account file.
type GeminiConfig struct {
	APIKey             string
	ProjectID          string
	Location           string
	ServiceAccountPath string
}

// GeminiClient wraps the Google Gen AI client.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("gemini requires GEMINI_API_KEY or GCP_PROJECT_ID")
		}
		if cfg.ServiceAccountPath != "" {
			// Set the environment variable so the SDK can find the credentials
			if err := os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.ServiceAccountPath); err != nil {
				return nil, fmt.Errorf("failed to set GOOGLE_APPLICATION_CREDENTIALS: %w", err)
			}
		}
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Generate runs a single GenerateContent call.
func (c *GeminiClient) Generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}

// GenerateJSON asks for a JSON reply shaped by schema and returns its text.
func (c *GeminiClient) GenerateJSON(ctx context.Context, model, system string, parts []*genai.Part, schema *genai.Schema) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := c.Generate(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Chat continues a conversation under a system instruction.
func (c *GeminiClient) Chat(ctx context.Context, model, system string, history []*genai.Content) (string, error) {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	resp, err := c.Generate(ctx, model, history, config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Transcribe sends inline audio with an instruction and returns the text of
// the first candidate.
func (c *GeminiClient) Transcribe(ctx context.Context, model string, audio []byte, mimeType, instruction string) (string, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
		{Text: instruction},
	}
	resp, err := c.Generate(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Synthesize renders prompt as speech with a prebuilt voice and returns the
// raw audio of the first inline part.
func (c *GeminiClient) Synthesize(ctx context.Context, model, voice, prompt string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	resp, err := c.Generate(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini returned no audio")
}
