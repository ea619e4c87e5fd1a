package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/storage"
	"github.com/fridahub/retrieval-go/internal/storage/models"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// defaultLimit 检索返回的最大命中数
const defaultLimit = 5

// historyTurns 作为上下文的最近对话轮数
const historyTurns = 3

// Collection 检索服务依赖的向量集合操作子集
type Collection interface {
	Search(ctx context.Context, queryText string, attrs []string, limit int) ([]vectorstore.SearchHit, error)
	Load(ctx context.Context) error
	Release(ctx context.Context) error
	Close() error
}

// CollectionFactory 每次请求打开自己的集合连接
type CollectionFactory func(ctx context.Context) (Collection, error)

// topicResolver 哈希到全文的解析与对话历史读取
type topicResolver interface {
	GetTextsByIDs(ids []string) ([]storage.TopicText, error)
	GetRecentTurns(userID int64, n int) ([]models.DialogueLog, error)
}

// Result 一次检索的装配结果
type Result struct {
	Context    string
	History    string
	MatchedIDs []string
	Found      bool
}

// Service 语义检索服务：向量检索、全文解析、上下文装配
type Service struct {
	factory CollectionFactory
	topics  topicResolver
	limit   int
}

// NewService 创建检索服务
func NewService(factory CollectionFactory, topics topicResolver) *Service {
	return &Service{factory: factory, topics: topics, limit: defaultLimit}
}

// SearchWithHistory 检索wiki集合并附带用户最近对话的转写
func (s *Service) SearchWithHistory(ctx context.Context, queryText string, userID int64) (*Result, error) {
	result, err := s.search(ctx, queryText)
	if err != nil {
		return nil, err
	}

	turns, err := s.topics.GetRecentTurns(userID, historyTurns)
	if err != nil {
		return nil, err
	}
	result.History = formatHistory(turns)
	return result, nil
}

// SearchWithoutHistory 检索wiki集合，不附带对话历史
func (s *Service) SearchWithoutHistory(ctx context.Context, queryText string) (*Result, error) {
	return s.search(ctx, queryText)
}

// search 公共检索路径
// 集合的内存驻留与连接在所有退出路径上释放，避免索引驻留跨请求泄漏
func (s *Service) search(ctx context.Context, queryText string) (_ *Result, err error) {
	collection, err := s.factory(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		// 先释放内存驻留再关连接；集合可能未完整初始化，清理前判存在
		if collection != nil {
			if releaseErr := collection.Release(context.WithoutCancel(ctx)); releaseErr != nil {
				logger.Warn("Failed to release collection", zap.Error(releaseErr))
			}
			if closeErr := collection.Close(); closeErr != nil {
				logger.Warn("Failed to close collection", zap.Error(closeErr))
			}
		}
	}()

	if err := collection.Load(ctx); err != nil {
		return nil, err
	}

	hits, err := collection.Search(ctx, queryText, nil, s.limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID != "" {
			ids = append(ids, hit.ID)
		}
	}

	// 无命中不是错误，返回空上下文由调用方决定如何处理
	if len(ids) == 0 {
		logger.Info("Поиск не дал результатов", zap.String("query", queryText))
		return &Result{Found: false}, nil
	}

	texts, err := s.topics.GetTextsByIDs(ids)
	if err != nil {
		return nil, err
	}

	return &Result{
		Context:    formatContext(texts),
		MatchedIDs: ids,
		Found:      len(texts) > 0,
	}, nil
}

// formatContext 将命中文本拼为带序号与源链接的上下文串
func formatContext(texts []storage.TopicText) string {
	var sb strings.Builder
	for i, text := range texts {
		sb.WriteString(fmt.Sprintf(" Контекст %d: %s %s  URL: %s", i+1, text.BookName, text.Text, text.URL))
	}
	return sb.String()
}

// formatHistory 最近对话转写，从旧到新编号
func formatHistory(turns []models.DialogueLog) string {
	var sb strings.Builder
	sb.WriteString("История вашего диалога: ")
	for i, turn := range turns {
		sb.WriteString(fmt.Sprintf("%d) Запрос пользователя: %s | Твой ответ: %s ", i+1, turn.Query, turn.Response))
	}
	return sb.String()
}
