package answer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
)

// OpenAIBackend 通过OpenAI接口生成回答，可选经代理访问
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend 创建OpenAI后端。proxyURL为空时直连。
func NewOpenAIBackend(apiKey, model, proxyURL string) (*OpenAIBackend, error) {
	clientConfig := openai.DefaultConfig(apiKey)
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("解析代理地址失败: %w", err)
		}
		clientConfig.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
		}
		logger.Info("OpenAI后端使用代理", zap.String("proxy", parsed.Host))
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (b *OpenAIBackend) Name() string {
	return b.model
}

// Complete 与其他后端不同，OpenAI走单条拼接提示
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	prompt := fmt.Sprintf("%s\n\n%s", systemPrompt(req.Kind), userContent(req))

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("malformed response: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
