package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/storage"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// promptFetcher 提示词模板数据源
type promptFetcher interface {
	Fetch(ctx context.Context) ([]storage.PromptRecord, error)
}

// PromptSyncer 提示词集合的全量同步
type PromptSyncer struct {
	source  promptFetcher
	factory CollectionFactory
	cfg     config.SyncConfig
}

// NewPromptSyncer 创建提示词同步器
func NewPromptSyncer(source promptFetcher, factory CollectionFactory, cfg config.SyncConfig) *PromptSyncer {
	return &PromptSyncer{source: source, factory: factory, cfg: cfg}
}

// Run 拉取模板方案并重建提示词集合
func (s *PromptSyncer) Run(ctx context.Context) (int, error) {
	r := newRun("prompts")

	prompts, err := s.source.Fetch(ctx)
	if err != nil {
		return 0, r.fail(err)
	}
	r.log.Info("Получены промты", zap.Int("count", len(prompts)))

	r.transition(StateBatch)
	records := make([]vectorstore.Record, 0, len(prompts))
	for _, prompt := range prompts {
		records = append(records, vectorstore.Record{
			ID:   prompt.ID,
			Text: prompt.Template,
			Attributes: map[string]string{
				"name":   prompt.Name,
				"params": prompt.Params,
			},
		})
	}

	collection, err := s.factory(ctx)
	if err != nil {
		return 0, r.fail(err)
	}
	defer func() {
		if collection != nil {
			collection.Close()
		}
	}()

	if err := collection.Init(ctx); err != nil {
		return 0, r.fail(err)
	}

	r.transition(StateEmbedAndInsert)
	if err := insertChunks(ctx, r, collection, records, s.cfg.InsertChunkSize); err != nil {
		return 0, r.fail(err)
	}

	r.transition(StateBuildIndex)
	if err := collection.BuildIndex(ctx); err != nil {
		return 0, r.fail(err)
	}

	r.done()
	return len(records), nil
}
