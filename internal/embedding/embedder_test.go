package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime 记录调用并返回可预测的隐藏状态
type fakeRuntime struct {
	device       string
	seenTexts    [][]string
	seenLengths  []int
	deviceCalls  []string
	reclaimCalls int
	encodeErr    error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{device: "cpu"}
}

// EncodeTokens 为每条文本生成两个token：[len(text), 1]，padding一个token
func (f *fakeRuntime) EncodeTokens(_ context.Context, texts []string, maxLength int) (*TokenBatch, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	f.seenTexts = append(f.seenTexts, texts)
	f.seenLengths = append(f.seenLengths, maxLength)

	batch := &TokenBatch{}
	for _, text := range texts {
		batch.HiddenStates = append(batch.HiddenStates, [][]float32{
			{float32(len(text)), 1},
			{0, 0}, // padding
		})
		batch.AttentionMask = append(batch.AttentionMask, []int{1, 0})
	}
	return batch, nil
}

func (f *fakeRuntime) Device(_ context.Context) (string, error) {
	return f.device, nil
}

func (f *fakeRuntime) SetDevice(_ context.Context, device string) error {
	f.deviceCalls = append(f.deviceCalls, device)
	f.device = device
	return nil
}

func (f *fakeRuntime) ReclaimMemory(_ context.Context) error {
	f.reclaimCalls++
	return nil
}

func (f *fakeRuntime) Ready() bool { return true }

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbedReturnsUnitVectors(t *testing.T) {
	runtime := newFakeRuntime()
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2})

	vectors, err := embedder.Embed(context.Background(), []string{"привет", "мир"}, EncodePassage)
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	for _, v := range vectors {
		assert.InDelta(t, 1.0, vectorNorm(v), 1e-5)
	}
}

func TestEmbedAppliesKindPrefix(t *testing.T) {
	runtime := newFakeRuntime()
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2})

	_, err := embedder.Embed(context.Background(), []string{"вопрос"}, EncodeQuery)
	require.NoError(t, err)
	_, err = embedder.Embed(context.Background(), []string{"статья"}, EncodePassage)
	require.NoError(t, err)

	require.Len(t, runtime.seenTexts, 2)
	assert.True(t, strings.HasPrefix(runtime.seenTexts[0][0], "query: "))
	assert.True(t, strings.HasPrefix(runtime.seenTexts[1][0], "passage: "))
}

func TestEmbedBatchingPreservesOrder(t *testing.T) {
	runtime := newFakeRuntime()
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2, BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := embedder.Embed(context.Background(), texts, EncodePassage)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// 5条文本、批大小2：3个子批
	assert.Len(t, runtime.seenTexts, 3)
	assert.Len(t, runtime.seenTexts[0], 2)
	assert.Len(t, runtime.seenTexts[2], 1)

	// fake把文本长度编码进隐藏状态，归一化后的比值可据此还原顺序
	for i, text := range texts {
		expectedLen := float64(len(text) + len("passage: "))
		ratio := float64(vectors[i][0]) / float64(vectors[i][1])
		assert.InDelta(t, expectedLen, ratio, 1e-3, "vector %d out of order", i)
	}
}

func TestEmbedMaxSeqLengthPassedThrough(t *testing.T) {
	runtime := newFakeRuntime()
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2, MaxSeqLength: 512})

	_, err := embedder.Embed(context.Background(), []string{"текст"}, EncodePassage)
	require.NoError(t, err)
	require.Len(t, runtime.seenLengths, 1)
	assert.Equal(t, 512, runtime.seenLengths[0])
}

func TestEmbedMovesAndRestoresDevice(t *testing.T) {
	runtime := newFakeRuntime() // стартует на cpu
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2, Device: "cuda"})

	_, err := embedder.Embed(context.Background(), []string{"текст"}, EncodePassage)
	require.NoError(t, err)

	assert.Equal(t, []string{"cuda", "cpu"}, runtime.deviceCalls)
	assert.Equal(t, "cpu", runtime.device)
}

func TestEmbedSkipsMoveWhenAlreadyOnDevice(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.device = "cuda"
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2, Device: "cuda"})

	_, err := embedder.Embed(context.Background(), []string{"текст"}, EncodePassage)
	require.NoError(t, err)
	assert.Empty(t, runtime.deviceCalls)
}

func TestEmbedReclaimsMemoryEvenOnError(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.encodeErr = fmt.Errorf("out of memory")
	embedder := NewE5Embedder(runtime, E5Options{Dimensions: 2})

	_, err := embedder.Embed(context.Background(), []string{"текст"}, EncodePassage)
	require.Error(t, err)
	assert.Equal(t, 1, runtime.reclaimCalls)
}

func TestEmbedEmptyInput(t *testing.T) {
	embedder := NewE5Embedder(newFakeRuntime(), E5Options{Dimensions: 2})
	vectors, err := embedder.Embed(context.Background(), nil, EncodePassage)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestMeanPoolIgnoresPadding(t *testing.T) {
	hidden := [][]float32{
		{2, 4},
		{4, 8},
		{100, 100}, // padding, не должен участвовать
	}
	mask := []int{1, 1, 0}

	pooled, err := meanPool(hidden, mask)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 6}, pooled)
}

func TestMeanPoolAllPadding(t *testing.T) {
	_, err := meanPool([][]float32{{1, 2}}, []int{0})
	require.Error(t, err)
}

func TestMeanPoolLengthMismatch(t *testing.T) {
	_, err := meanPool([][]float32{{1}, {2}}, []int{1})
	require.Error(t, err)
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, []float32{0, 0, 0}, normalizeL2(v))
}
