package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/metrics"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// State 同步任务状态机
type State string

const (
	StateFetchSource    State = "FETCH_SOURCE"
	StateBatch          State = "BATCH"
	StateEmbedAndInsert State = "EMBED_AND_INSERT"
	StateBuildIndex     State = "BUILD_INDEX"
	StateDeduplicate    State = "DEDUPLICATE"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Collection 同步管道依赖的向量集合操作子集
type Collection interface {
	Name() string
	Init(ctx context.Context) error
	EnsureReady(ctx context.Context) error
	Insert(ctx context.Context, records []vectorstore.Record) error
	BuildIndex(ctx context.Context) error
	Deduplicate(ctx context.Context, threshold float64) (map[string]struct{}, error)
	Release(ctx context.Context) error
	Close() error
}

// CollectionFactory 每次同步打开自己的集合连接
type CollectionFactory func(ctx context.Context) (Collection, error)

// run 一次同步执行的状态跟踪
type run struct {
	source string
	state  State
	log    *zap.Logger
}

func newRun(source string) *run {
	return &run{
		source: source,
		state:  StateFetchSource,
		log:    logger.With(zap.String("sync_source", source)),
	}
}

// transition 记录状态迁移，同一次运行内分块严格按拉取顺序处理
func (r *run) transition(next State) {
	r.log.Info("Sync state transition",
		zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
}

// fail 进入失败态并记录原因
func (r *run) fail(err error) error {
	r.state = StateFailed
	r.log.Error("Sync run failed", zap.Error(err))
	metrics.SyncRuns.WithLabelValues(r.source, "failed").Inc()
	return err
}

// done 进入完成态
func (r *run) done() {
	r.transition(StateDone)
	metrics.SyncRuns.WithLabelValues(r.source, "ok").Inc()
}

// chunkRecords 将记录切分为固定大小的块以限制内存与请求体
func chunkRecords(records []vectorstore.Record, size int) [][]vectorstore.Record {
	if size <= 0 {
		size = 10000
	}
	var chunks [][]vectorstore.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// insertChunks 逐块插入，单块失败即中止整次运行（不静默丢弃）
func insertChunks(ctx context.Context, r *run, collection Collection, records []vectorstore.Record, chunkSize int) error {
	chunks := chunkRecords(records, chunkSize)
	for i, chunk := range chunks {
		r.log.Info("Вставляю пакет",
			zap.Int("batch", i+1), zap.Int("total", len(chunks)), zap.Int("size", len(chunk)))
		if err := collection.Insert(ctx, chunk); err != nil {
			r.log.Error("Ошибка при вставке пакета", zap.Int("batch", i+1), zap.Error(err))
			return err
		}
	}
	return nil
}
