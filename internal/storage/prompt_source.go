package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
)

// promptSchemeKey 提示词模板方案在Redis中的固定键
const promptSchemeKey = "scheme:vector"

// PromptRecord 一条提示词模板
type PromptRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template"`
	Params   string `json:"params"`
}

// Valid 必填字段齐全
func (p PromptRecord) Valid() bool {
	return p.ID != "" && p.Name != "" && p.Template != ""
}

// PromptSource 提示词模板的键值数据源
type PromptSource struct {
	client *redis.Client
}

// NewPromptSource 创建提示词数据源
func NewPromptSource(client *redis.Client) *PromptSource {
	return &PromptSource{client: client}
}

// Fetch 读取模板方案文档，必填字段缺失的条目记警告后跳过
func (s *PromptSource) Fetch(ctx context.Context) ([]PromptRecord, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	raw, err := s.client.JSONGet(ctx, promptSchemeKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis JSON.GET failed: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var items []PromptRecord
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode prompt scheme: %w", err)
	}

	records := make([]PromptRecord, 0, len(items))
	for _, item := range items {
		if !item.Valid() {
			logger.Warn("Prompt record missing required keys",
				zap.String("id", item.ID), zap.String("name", item.Name))
			continue
		}
		records = append(records, item)
	}
	return records, nil
}
