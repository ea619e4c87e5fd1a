package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// topicInserter 单主题补充依赖的存储操作
type topicInserter interface {
	InsertTopic(hash, title, text string, userID int64) error
}

// AddTopic 添加一条用户补充主题：写入Postgres快照并追加到wiki集合
// 不做全量重建，插入后直接重建索引使其可检索
func AddTopic(ctx context.Context, topics topicInserter, factory CollectionFactory, title, text string, userID int64) (string, error) {
	hash := GenerateHash(text)

	if err := topics.InsertTopic(hash, title, text, userID); err != nil {
		return "", err
	}

	collection, err := factory(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if collection != nil {
			collection.Close()
		}
	}()

	// 首次运行时集合可能尚未建立
	if err := collection.EnsureReady(ctx); err != nil {
		return "", err
	}

	record := vectorstore.Record{
		ID:   hash,
		Text: title + " " + text,
	}
	if err := collection.Insert(ctx, []vectorstore.Record{record}); err != nil {
		return "", err
	}
	if err := collection.BuildIndex(ctx); err != nil {
		return "", err
	}

	logger.Info("Новая тема добавлена", zap.String("hash", hash), zap.Int64("user_id", userID))
	return hash, nil
}
