package client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps the OpenAI API client.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	speechModel string
	voice       string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       openai.GPT4oMini,
		speechModel: string(openai.TTSModel1),
		voice:       string(openai.VoiceAlloy),
	}
}

// NewOpenAIClientWithConfig creates a client against a custom base URL.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	c := NewOpenAIClient("")
	c.client = openai.NewClientWithConfig(cfg)
	return c
}

// NewAzureOpenAIClient creates a client for an Azure OpenAI resource.
// Model names set on the client are resolved as deployment names.
func NewAzureOpenAIClient(endpoint, apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(openai.DefaultAzureConfig(apiKey, endpoint))
}

// WithModel sets the chat model to use.
func (c *OpenAIClient) WithModel(model string) *OpenAIClient {
	if model != "" {
		c.model = model
	}
	return c
}

// WithSpeech sets the speech model and voice.
func (c *OpenAIClient) WithSpeech(model, voice string) *OpenAIClient {
	if model != "" {
		c.speechModel = model
	}
	if voice != "" {
		c.voice = voice
	}
	return c
}

// ChatWithHistory sends a chat with message history.
func (c *OpenAIClient) ChatWithHistory(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// ChatJSON sends a system and user message in JSON mode and returns the raw
// JSON content.
func (c *OpenAIClient) ChatJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Speech synthesizes text as raw 24kHz 16-bit mono PCM.
func (c *OpenAIClient) Speech(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.speechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

// Transcribe runs Whisper on an audio blob. The file name only carries the
// container format.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: fileName,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
