package answer

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openRouterBaseURL DeepSeek模型经OpenRouter访问
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// DeepSeekBackend 通过OpenRouter的OpenAI兼容接口访问DeepSeek
type DeepSeekBackend struct {
	client *openai.Client
	model  string
}

// NewDeepSeekBackend 创建DeepSeek后端
func NewDeepSeekBackend(apiKey, model string) *DeepSeekBackend {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = openRouterBaseURL

	return &DeepSeekBackend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (b *DeepSeekBackend) Name() string {
	return b.model
}

func (b *DeepSeekBackend) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Kind)},
			{Role: openai.ChatMessageRoleUser, Content: userContent(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("DeepSeek请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("malformed response: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
