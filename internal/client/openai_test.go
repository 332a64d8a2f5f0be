package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_ChatJSON(t *testing.T) {
	srv := chatServer(t, func(r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	})

	cfg := openai.DefaultConfig("key")
	cfg.BaseURL = srv.URL + "/v1"
	c := NewOpenAIClientWithConfig(cfg).WithModel("gpt-test")

	out, err := c.ChatJSON(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, out)
}

func TestAzureOpenAIClient_UsesDeployment(t *testing.T) {
	srv := chatServer(t, func(r *http.Request) {
		assert.Equal(t, "/openai/deployments/storyspeak-chat/chat/completions", r.URL.Path)
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.NotEmpty(t, r.URL.Query().Get("api-version"))
	})

	c := NewAzureOpenAIClient(srv.URL, "azure-key").WithModel("storyspeak-chat")
	out, err := c.ChatWithHistory(context.Background(), []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, out)
}

func TestOpenAIClient_WithModelKeepsDefault(t *testing.T) {
	c := NewOpenAIClient("key").WithModel("").WithSpeech("", "nova")
	assert.Equal(t, openai.GPT4oMini, c.model)
	assert.Equal(t, string(openai.TTSModel1), c.speechModel)
	assert.Equal(t, "nova", c.voice)
}
