package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/storage"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// addressFetcher 地址键值数据源
type addressFetcher interface {
	ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error)
	MultiGetJSON(ctx context.Context, keys []string) ([]storage.AddressRecord, error)
}

// AddressSyncer 地址集合的全量同步
type AddressSyncer struct {
	source  addressFetcher
	factory CollectionFactory
	cfg     config.SyncConfig
}

// NewAddressSyncer 创建地址同步器
func NewAddressSyncer(source addressFetcher, factory CollectionFactory, cfg config.SyncConfig) *AddressSyncer {
	return &AddressSyncer{source: source, factory: factory, cfg: cfg}
}

// AddressReport 地址同步结果
type AddressReport struct {
	Fetched  int
	Inserted int
	Skipped  int
}

// Run 执行一次全量同步：扫描login:*、批量取JSON、重建集合、分块入库、建索引
// 拉取阶段失败在任何写入前中止；入库途中失败集合保持部分写入（至少一次语义）
func (s *AddressSyncer) Run(ctx context.Context) (*AddressReport, error) {
	r := newRun("addresses")

	keys, err := s.source.ScanKeys(ctx, "login:*", int64(s.cfg.RedisScanCount))
	if err != nil {
		return nil, r.fail(err)
	}

	batchSize := s.cfg.RedisBatchSize
	if batchSize <= 0 {
		batchSize = 1024
	}

	var rows []storage.AddressRecord
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch, err := s.source.MultiGetJSON(ctx, keys[start:end])
		if err != nil {
			return nil, r.fail(err)
		}
		rows = append(rows, batch...)
	}
	r.log.Info("Получены записи адресов", zap.Int("count", len(rows)))

	r.transition(StateBatch)

	// 缺少必填字段的行静默跳过，不视为错误
	report := &AddressReport{Fetched: len(rows)}
	records := make([]vectorstore.Record, 0, len(rows))
	for _, row := range rows {
		if row.Address == "" || row.HouseID == "" {
			report.Skipped++
			continue
		}
		records = append(records, vectorstore.Record{
			ID:   row.Login,
			Text: row.Address,
			Attributes: map[string]string{
				"house_id": row.HouseID,
				"flat":     row.Flat,
			},
		})
	}

	collection, err := s.factory(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	defer func() {
		if collection != nil {
			collection.Close()
		}
	}()

	// 全量同步总是重建集合
	if err := collection.Init(ctx); err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateEmbedAndInsert)
	if err := insertChunks(ctx, r, collection, records, s.cfg.InsertChunkSize); err != nil {
		return nil, r.fail(err)
	}
	report.Inserted = len(records)

	r.transition(StateBuildIndex)
	if err := collection.BuildIndex(ctx); err != nil {
		return nil, r.fail(err)
	}

	r.done()
	return report, nil
}
