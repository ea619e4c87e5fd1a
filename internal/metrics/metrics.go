package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 检索核心的Prometheus指标
var (
	// EmbeddingBatches 已处理的向量化批次数
	EmbeddingBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frida_embedding_batches_total",
		Help: "Total number of embedding batches processed",
	})

	// VectorSearches 按集合统计的向量检索次数
	VectorSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frida_vector_searches_total",
		Help: "Total number of vector searches by collection",
	}, []string{"collection"})

	// VectorSearchDuration 向量检索耗时
	VectorSearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frida_vector_search_duration_seconds",
		Help:    "Vector search latency by collection",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	// SyncRuns 按数据源与结果统计的同步任务次数
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frida_sync_runs_total",
		Help: "Total number of knowledge sync runs by source and result",
	}, []string{"source", "result"})

	// BackendRequests 按后端与结果统计的模型调用次数
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frida_backend_requests_total",
		Help: "Total number of LLM backend requests by backend and result",
	}, []string{"backend", "result"})

	// BackendFallbacks 后端降级次数
	BackendFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frida_backend_fallbacks_total",
		Help: "Total number of times a non-preferred backend answered",
	})
)
