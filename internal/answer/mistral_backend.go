package answer

import (
	"context"
	"fmt"

	"github.com/fridahub/retrieval-go/internal/mistral"
)

// MistralBackend 通过Mistral聊天接口生成回答
type MistralBackend struct {
	client *mistral.Client
	model  string
}

// NewMistralBackend 创建Mistral后端
func NewMistralBackend(client *mistral.Client, model string) *MistralBackend {
	return &MistralBackend{client: client, model: model}
}

func (b *MistralBackend) Name() string {
	return b.model
}

func (b *MistralBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("mistral client not configured")
	}

	resp, err := b.client.ChatCompletion(ctx, mistral.ChatRequest{
		Model: b.model,
		Messages: []mistral.ChatMessage{
			{Role: "system", Content: systemPrompt(req.Kind)},
			{Role: "user", Content: userContent(req)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}
