package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-large-latest", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "cmpl-1",
			"model": req.Model,
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "ответ"}},
			},
			"usage": map[string]int{"total_tokens": 10},
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key")
	client.SetBaseURL(server.URL)

	resp, err := client.ChatCompletion(context.Background(), ChatRequest{
		Model: "mistral-large-latest",
		Messages: []ChatMessage{
			{Role: "system", Content: "системный промпт"},
			{Role: "user", Content: "вопрос"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ответ", resp.Choices[0].Message.Content)
}

func TestChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apiError{Message: "invalid api key", Type: "auth_error"})
	}))
	t.Cleanup(server.Close)

	client := NewClient("bad-key")
	client.SetBaseURL(server.URL)

	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChatCompletionNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "cmpl-2"})
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key")
	client.SetBaseURL(server.URL)

	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewClientEmptyKey(t *testing.T) {
	assert.Nil(t, NewClient("  "))
}
