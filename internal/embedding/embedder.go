package embedding

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/metrics"
)

// EncodeKind e5模型区分查询编码与文档编码，非对称检索依赖该前缀
type EncodeKind string

const (
	EncodeQuery   EncodeKind = "query"
	EncodePassage EncodeKind = "passage"
)

// prefix e5约定的文本前缀
func (k EncodeKind) prefix() string {
	switch k {
	case EncodeQuery:
		return "query: "
	case EncodePassage:
		return "passage: "
	default:
		return ""
	}
}

// Embedder 文本向量化接口
type Embedder interface {
	// Embed 将一批文本转为单位长度的向量，结果顺序与输入一致
	Embed(ctx context.Context, texts []string, kind EncodeKind) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// E5Embedder 基于本机推理运行时的multilingual-e5-large向量生成器
type E5Embedder struct {
	runtime      ModelRuntime
	dimensions   int
	maxSeqLength int
	batchSize    int
	device       string
}

// E5Options 向量生成器配置
type E5Options struct {
	Dimensions   int
	MaxSeqLength int
	BatchSize    int
	Device       string
}

// NewE5Embedder 创建e5向量生成器
func NewE5Embedder(runtime ModelRuntime, opts E5Options) *E5Embedder {
	if opts.Dimensions == 0 {
		opts.Dimensions = 1024
	}
	if opts.MaxSeqLength == 0 {
		opts.MaxSeqLength = 512
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 16
	}
	if opts.Device == "" {
		opts.Device = "cuda"
	}

	return &E5Embedder{
		runtime:      runtime,
		dimensions:   opts.Dimensions,
		maxSeqLength: opts.MaxSeqLength,
		batchSize:    opts.BatchSize,
		device:       opts.Device,
	}
}

// Embed 分批编码文本并做mask加权平均池化，返回L2归一化后的向量
// 调用期间模型被临时迁移到目标设备，结束后恢复原位置并清理显存
func (e *E5Embedder) Embed(ctx context.Context, texts []string, kind EncodeKind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.runtime == nil {
		return nil, fmt.Errorf("embedding runtime not configured")
	}

	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = kind.prefix() + text
	}

	restore, err := e.withDevice(ctx, e.device)
	if err != nil {
		return nil, err
	}
	defer restore()

	// 每次编码后必须回收显存，否则持续负载下显存会无限增长
	defer func() {
		if err := e.runtime.ReclaimMemory(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to reclaim device memory", zap.Error(err))
		}
	}()

	// 分批编码以限制峰值显存，按输入顺序拼接
	vectors := make([][]float32, 0, len(prefixed))
	for start := 0; start < len(prefixed); start += e.batchSize {
		end := start + e.batchSize
		if end > len(prefixed) {
			end = len(prefixed)
		}

		batch, err := e.runtime.EncodeTokens(ctx, prefixed[start:end], e.maxSeqLength)
		if err != nil {
			return nil, fmt.Errorf("encode batch %d failed: %w", start/e.batchSize+1, err)
		}

		for i := range batch.HiddenStates {
			vector, err := meanPool(batch.HiddenStates[i], batch.AttentionMask[i])
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, normalizeL2(vector))
		}
		metrics.EmbeddingBatches.Inc()
	}

	return vectors, nil
}

// Dimensions 向量维度
func (e *E5Embedder) Dimensions() int {
	return e.dimensions
}

// Ready 检查运行时是否可用
func (e *E5Embedder) Ready() bool {
	return e.runtime != nil && e.runtime.Ready()
}

// withDevice 将模型迁移到目标设备，返回恢复函数
// CPU-only与GPU两条代码路径共享同一个模型实例，靠临时迁移切换
func (e *E5Embedder) withDevice(ctx context.Context, target string) (func(), error) {
	original, err := e.runtime.Device(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query model device: %w", err)
	}
	if original == target {
		return func() {}, nil
	}

	if err := e.runtime.SetDevice(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to move model to %s: %w", target, err)
	}

	return func() {
		if err := e.runtime.SetDevice(context.WithoutCancel(ctx), original); err != nil {
			logger.Warn("Failed to restore model device",
				zap.String("device", original), zap.Error(err))
		}
	}, nil
}

// meanPool 按attention mask加权平均池化，padding位置不参与平均
// 该池化规则决定了与既有索引向量的兼容性，不能改动
func meanPool(hiddenStates [][]float32, attentionMask []int) ([]float32, error) {
	if len(hiddenStates) == 0 {
		return nil, fmt.Errorf("empty hidden states")
	}
	if len(hiddenStates) != len(attentionMask) {
		return nil, fmt.Errorf("hidden states and attention mask length mismatch: %d != %d",
			len(hiddenStates), len(attentionMask))
	}

	dim := len(hiddenStates[0])
	sum := make([]float32, dim)
	var validTokens float32

	for tok, state := range hiddenStates {
		if attentionMask[tok] == 0 {
			continue
		}
		validTokens++
		for d := 0; d < dim; d++ {
			sum[d] += state[d]
		}
	}

	if validTokens == 0 {
		return nil, fmt.Errorf("attention mask has no valid tokens")
	}
	for d := range sum {
		sum[d] /= validTokens
	}
	return sum, nil
}

// normalizeL2 归一化到单位长度，使内积与余弦检索不受向量模长影响
func normalizeL2(vector []float32) []float32 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return vector
	}
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}
