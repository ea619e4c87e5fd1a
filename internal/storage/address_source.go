package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
)

// AddressRecord Redis中按login:*存放的一条住址记录
type AddressRecord struct {
	Login   string `json:"login"`
	Address string `json:"address"`
	HouseID string `json:"houseId"`
	Flat    string `json:"flat"`
}

// AddressSource 地址记录的键值数据源
type AddressSource struct {
	client *redis.Client
}

// NewAddressSource 创建地址数据源
func NewAddressSource(client *redis.Client) *AddressSource {
	return &AddressSource{client: client}
}

// ScanKeys 游标扫描匹配的全部键，直到游标回到起点
func (s *AddressSource) ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if pattern == "" {
		pattern = "login:*"
	}
	if count <= 0 {
		count = 10000
	}

	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64

	for {
		partial, next, err := s.client.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan failed: %w", err)
		}
		for _, key := range partial {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	logger.Info("Получены ключи из Redis", zap.Int("count", len(keys)))
	return keys, nil
}

// MultiGetJSON 按键批量取JSON文档，缺失或无法解析的键跳过
func (s *AddressSource) MultiGetJSON(ctx context.Context, keys []string) ([]AddressRecord, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.JSONMGet(ctx, "$", keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis JSON.MGET failed: %w", err)
	}

	records := make([]AddressRecord, 0, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			logger.Warn("Unexpected JSON.MGET value type", zap.String("key", keys[i]))
			continue
		}
		// path "$"返回单元素数组包装
		var wrapped []AddressRecord
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil || len(wrapped) == 0 {
			logger.Warn("Failed to decode address record", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		records = append(records, wrapped[0])
	}
	return records, nil
}
