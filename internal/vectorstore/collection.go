package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/embedding"
	apperrors "github.com/fridahub/retrieval-go/internal/errors"
	"github.com/fridahub/retrieval-go/internal/gpu"
	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/metrics"
)

// Record 一条入库知识：主键、原文、集合特有的附加字段
type Record struct {
	ID         string
	Text       string
	Attributes map[string]string
}

// SearchHit 一条检索命中，已按"越前越相关"排序
type SearchHit struct {
	ID         string
	Score      float32
	Attributes map[string]string
}

// Options 集合客户端配置
type Options struct {
	Address    string
	Spec       CollectionSpec
	Embedder   embedding.Embedder
	GPULock    *gpu.Lock
	GPUTimeout time.Duration
	BatchSize  int // 向量化子批大小
}

// Collection 一个命名Milvus集合上的全部操作
// 每个请求打开自己的连接，用完必须Close；跨请求不共享
type Collection struct {
	milvusClient client.Client
	spec         CollectionSpec
	embedder     embedding.Embedder
	gpuLock      *gpu.Lock
	gpuTimeout   time.Duration
	batchSize    int
}

// NewCollection 连接Milvus并创建集合客户端，集合不存在时建表
func NewCollection(ctx context.Context, opts Options) (*Collection, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 16
	}

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address: opts.Address,
	})
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("failed to connect to milvus", err)
	}

	c := &Collection{
		milvusClient: milvusClient,
		spec:         opts.Spec,
		embedder:     opts.Embedder,
		gpuLock:      opts.GPULock,
		gpuTimeout:   opts.GPUTimeout,
		batchSize:    opts.BatchSize,
	}

	if err := c.ensureExists(ctx); err != nil {
		milvusClient.Close()
		return nil, err
	}

	return c, nil
}

// WrapClient 在已有客户端上创建集合封装（测试用）
func WrapClient(milvusClient client.Client, opts Options) *Collection {
	if opts.BatchSize == 0 {
		opts.BatchSize = 16
	}
	return &Collection{
		milvusClient: milvusClient,
		spec:         opts.Spec,
		embedder:     opts.Embedder,
		gpuLock:      opts.GPULock,
		gpuTimeout:   opts.GPUTimeout,
		batchSize:    opts.BatchSize,
	}
}

// Name 集合名
func (c *Collection) Name() string {
	return c.spec.Name
}

// Spec 集合定义
func (c *Collection) Spec() CollectionSpec {
	return c.spec
}

// ensureExists 集合不存在时按spec建表
func (c *Collection) ensureExists(ctx context.Context) error {
	has, err := c.milvusClient.HasCollection(ctx, c.spec.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	if err := c.milvusClient.CreateCollection(ctx, buildSchema(c.spec), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.spec.Name, err)
	}
	logger.Info("Коллекция создана", zap.String("collection", c.spec.Name))
	return nil
}

// EnsureReady 非破坏性就绪：集合不存在时建表，确保索引与内存驻留
// 增量写入路径使用，不触碰已有数据
func (c *Collection) EnsureReady(ctx context.Context) error {
	if err := c.ensureExists(ctx); err != nil {
		return err
	}
	return c.BuildIndex(ctx)
}

// Init 重置集合：已有数据全部丢弃后重建
// 破坏性操作，需要保留数据的调用方不能使用
func (c *Collection) Init(ctx context.Context) error {
	has, err := c.milvusClient.HasCollection(ctx, c.spec.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		if err := c.milvusClient.DropCollection(ctx, c.spec.Name); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", c.spec.Name, err)
		}
		logger.Info("Коллекция удалена", zap.String("collection", c.spec.Name))
	}

	if err := c.milvusClient.CreateCollection(ctx, buildSchema(c.spec), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.spec.Name, err)
	}
	logger.Info("Коллекция создана", zap.String("collection", c.spec.Name))
	return nil
}

// Insert 向集合追加记录：截断超长文本、补齐缺失字段、GPU锁内向量化
// 同一批内的重复主键不在该层去重，由调用方负责
func (c *Collection) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	attrNames := c.spec.AttributeNames()
	attrData := make(map[string][]string, len(attrNames))
	for _, name := range attrNames {
		attrData[name] = make([]string, 0, len(records))
	}

	for _, record := range records {
		hashes = append(hashes, record.ID)
		text := record.Text
		if c.spec.TextCap > 0 && utf8.RuneCountInString(text) > c.spec.TextCap {
			// 超过存储上限的文本截断而不是拒绝，按字符截断避免切坏多字节符号
			text = string([]rune(text)[:c.spec.TextCap])
		}
		texts = append(texts, text)
		for _, name := range attrNames {
			attrData[name] = append(attrData[name], record.Attributes[name])
		}
	}

	var vectors [][]float32
	err := gpu.WithLock(ctx, c.gpuLock, c.gpuTimeout, func() error {
		var embedErr error
		vectors, embedErr = c.embedder.Embed(ctx, texts, embedding.EncodePassage)
		return embedErr
	})
	if err != nil {
		return err
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedding count mismatch: %d records, %d vectors", len(records), len(vectors))
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(FieldHash, hashes),
		entity.NewColumnFloatVector(FieldEmbedding, c.spec.Dimension, vectors),
		entity.NewColumnVarChar(FieldText, texts),
	}
	for _, name := range attrNames {
		columns = append(columns, entity.NewColumnVarChar(name, attrData[name]))
	}

	if _, err := c.milvusClient.Insert(ctx, c.spec.Name, "", columns...); err != nil {
		return apperrors.NewUpstreamUnavailable("milvus insert failed", err)
	}
	return nil
}

// BuildIndex 为embedding列重建HNSW索引并加载集合
// 批量插入后、检索前必须调用，无索引的集合无法正确检索
func (c *Collection) BuildIndex(ctx context.Context) error {
	index, err := entity.NewIndexHNSW(c.spec.Metric, c.spec.IndexM, c.spec.IndexEfBuild)
	if err != nil {
		return fmt.Errorf("failed to build HNSW index params: %w", err)
	}

	if err := c.milvusClient.CreateIndex(ctx, c.spec.Name, FieldEmbedding, index, false); err != nil {
		return apperrors.NewUpstreamUnavailable("failed to create index", err)
	}
	if err := c.milvusClient.LoadCollection(ctx, c.spec.Name, false); err != nil {
		return apperrors.NewUpstreamUnavailable("failed to load collection", err)
	}
	if err := c.milvusClient.Flush(ctx, c.spec.Name, false); err != nil {
		logger.Warn("Failed to flush collection", zap.String("collection", c.spec.Name), zap.Error(err))
	}
	return nil
}

// Search 向量化查询文本并执行ANN检索
// 命中按"最相关在前"返回，不泄漏底层指标的排序方向
func (c *Collection) Search(ctx context.Context, queryText string, attrs []string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}

	start := time.Now()
	defer func() {
		metrics.VectorSearches.WithLabelValues(c.spec.Name).Inc()
		metrics.VectorSearchDuration.WithLabelValues(c.spec.Name).Observe(time.Since(start).Seconds())
	}()

	var vectors [][]float32
	err := gpu.WithLock(ctx, c.gpuLock, c.gpuTimeout, func() error {
		var embedErr error
		vectors, embedErr = c.embedder.Embed(ctx, []string{queryText}, embedding.EncodeQuery)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	outputFields := append([]string{FieldHash}, attrs...)
	hits, err := c.searchByVector(ctx, vectors[0], outputFields, limit)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// searchByVector 用现成向量执行检索
func (c *Collection) searchByVector(ctx context.Context, vector []float32, outputFields []string, limit int) ([]SearchHit, error) {
	sp, err := entity.NewIndexHNSWSearchParam(c.spec.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := c.milvusClient.Search(
		ctx,
		c.spec.Name,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		c.spec.Metric,
		limit,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("milvus search failed", err)
	}
	if len(results) == 0 {
		return []SearchHit{}, nil
	}
	result := results[0]
	if result.Err != nil {
		return nil, apperrors.NewUpstreamUnavailable("milvus search failed", result.Err)
	}

	hits := c.collectHits(result, outputFields)

	// 统一为"最优在前"：L2升序，余弦/内积降序
	sort.SliceStable(hits, func(i, j int) bool {
		if c.spec.SmallerIsCloser() {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}

// collectHits 从SDK结果列中提取命中
func (c *Collection) collectHits(result client.SearchResult, outputFields []string) []SearchHit {
	fieldData := make(map[string][]string, len(outputFields))
	for _, column := range result.Fields {
		if varchar, ok := column.(*entity.ColumnVarChar); ok {
			fieldData[column.Name()] = varchar.Data()
		}
	}

	var ids []string
	if result.IDs != nil {
		if idColumn, ok := result.IDs.(*entity.ColumnVarChar); ok {
			ids = idColumn.Data()
		}
	}
	if len(ids) == 0 {
		ids = fieldData[FieldHash]
	}

	hits := make([]SearchHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		hit := SearchHit{Attributes: make(map[string]string)}
		if i < len(ids) {
			hit.ID = ids[i]
		}
		if i < len(result.Scores) {
			hit.Score = result.Scores[i]
		}
		for _, field := range outputFields {
			if field == FieldHash {
				continue
			}
			if values, ok := fieldData[field]; ok && i < len(values) {
				hit.Attributes[field] = values[i]
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// Deduplicate 近似重复清理：对每个未删除向量做小k自检索，
// 相似度达到阈值的其它命中标记删除。先到先留，已删除的向量不再作为查询锚点
// O(N)次检索只在离线维护时执行，不在请求路径上
func (c *Collection) Deduplicate(ctx context.Context, threshold float64) (map[string]struct{}, error) {
	resultSet, err := c.milvusClient.Query(
		ctx,
		c.spec.Name,
		[]string{},
		fmt.Sprintf(`%s != "0"`, FieldHash),
		[]string{FieldHash, FieldEmbedding},
	)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("milvus query failed", err)
	}

	var ids []string
	var vectors [][]float32
	for _, column := range resultSet {
		switch column.Name() {
		case FieldHash:
			if varchar, ok := column.(*entity.ColumnVarChar); ok {
				ids = varchar.Data()
			}
		case FieldEmbedding:
			if vec, ok := column.(*entity.ColumnFloatVector); ok {
				vectors = vec.Data()
			}
		}
	}
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("query returned %d ids but %d vectors", len(ids), len(vectors))
	}

	deleted := make(map[string]struct{})
	for i, vector := range vectors {
		if _, gone := deleted[ids[i]]; gone {
			continue
		}

		hits, err := c.searchByVector(ctx, vector, []string{FieldHash}, 3)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if hit.ID == ids[i] {
				continue
			}
			if _, gone := deleted[hit.ID]; gone {
				continue
			}
			if !c.meetsThreshold(hit.Score, threshold) {
				continue
			}
			if err := c.milvusClient.Delete(ctx, c.spec.Name, "", fmt.Sprintf("%s == '%s'", FieldHash, hit.ID)); err != nil {
				return nil, apperrors.NewUpstreamUnavailable("milvus delete failed", err)
			}
			deleted[hit.ID] = struct{}{}
			logger.Info("Удален дубликат",
				zap.String("collection", c.spec.Name),
				zap.String("hash", hit.ID),
				zap.String("anchor", ids[i]),
				zap.Float32("score", hit.Score))
		}
	}

	if len(deleted) > 0 {
		if err := c.milvusClient.Flush(ctx, c.spec.Name, false); err != nil {
			logger.Warn("Failed to flush after dedup", zap.Error(err))
		}
		if err := c.milvusClient.LoadCollection(ctx, c.spec.Name, false); err != nil {
			logger.Warn("Failed to reload after dedup", zap.Error(err))
		}
	}
	return deleted, nil
}

// meetsThreshold 指标感知的相似度判定
func (c *Collection) meetsThreshold(score float32, threshold float64) bool {
	if c.spec.SmallerIsCloser() {
		return float64(score) <= threshold
	}
	return float64(score) >= threshold
}

// Count 集合内记录数
func (c *Collection) Count(ctx context.Context) (int64, error) {
	stats, err := c.milvusClient.GetCollectionStatistics(ctx, c.spec.Name)
	if err != nil {
		return 0, apperrors.NewUpstreamUnavailable("failed to get collection statistics", err)
	}
	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return count, nil
}

// Load 将集合加载进内存供检索
func (c *Collection) Load(ctx context.Context) error {
	if err := c.milvusClient.LoadCollection(ctx, c.spec.Name, false); err != nil {
		return apperrors.NewUpstreamUnavailable("failed to load collection", err)
	}
	return nil
}

// Release 释放集合的内存驻留，数据保留
func (c *Collection) Release(ctx context.Context) error {
	if c == nil || c.milvusClient == nil {
		return nil
	}
	return c.milvusClient.ReleaseCollection(ctx, c.spec.Name)
}

// Drop 删除集合与全部数据
func (c *Collection) Drop(ctx context.Context) error {
	return c.milvusClient.DropCollection(ctx, c.spec.Name)
}

// Close 关闭出站连接，未初始化时调用是安全的
func (c *Collection) Close() error {
	if c == nil || c.milvusClient == nil {
		return nil
	}
	return c.milvusClient.Close()
}
