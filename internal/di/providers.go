package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/dig"

	"github.com/fridahub/retrieval-go/internal/answer"
	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/database"
	"github.com/fridahub/retrieval-go/internal/embedding"
	"github.com/fridahub/retrieval-go/internal/gpu"
	"github.com/fridahub/retrieval-go/internal/mistral"
	"github.com/fridahub/retrieval-go/internal/retrieval"
	"github.com/fridahub/retrieval-go/internal/storage"
	syncpipe "github.com/fridahub/retrieval-go/internal/sync"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// Syncers 三个数据源的同步器集合
type Syncers struct {
	Address *syncpipe.AddressSyncer
	Prompt  *syncpipe.PromptSyncer
	Wiki    *syncpipe.WikiSyncer
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册GPU锁
	if err := container.Provide(func(cfg *config.Config) *gpu.Lock {
		return gpu.NewLock(cfg.GPU.LockPath)
	}); err != nil {
		return err
	}

	// 注册向量生成器
	if err := container.Provide(func(cfg *config.Config) embedding.Embedder {
		runtime := embedding.NewHTTPRuntime(cfg.Embedding.RuntimeURL)
		return embedding.NewE5Embedder(runtime, embedding.E5Options{
			Dimensions:   cfg.Embedding.Dimension,
			MaxSeqLength: cfg.Embedding.MaxSeqLength,
			BatchSize:    cfg.Embedding.BatchSize,
			Device:       cfg.Embedding.Device,
		})
	}); err != nil {
		return err
	}

	// 注册数据源
	if err := container.Provide(func() (*storage.AddressSource, error) {
		if database.RedisClient == nil {
			return nil, fmt.Errorf("redis not initialized")
		}
		return storage.NewAddressSource(database.RedisClient), nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func() (*storage.PromptSource, error) {
		if database.RedisClient == nil {
			return nil, fmt.Errorf("redis not initialized")
		}
		return storage.NewPromptSource(database.RedisClient), nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func() (*storage.WikiSource, error) {
		if database.WikiDB == nil {
			return nil, fmt.Errorf("wiki database not initialized")
		}
		return storage.NewWikiSource(database.WikiDB), nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func() (*storage.TopicStore, error) {
		if database.DB == nil {
			return nil, fmt.Errorf("postgres not initialized")
		}
		return storage.NewTopicStore(database.DB), nil
	}); err != nil {
		return err
	}

	// 注册同步器
	if err := container.Provide(newSyncers); err != nil {
		return err
	}

	// 注册检索服务
	if err := container.Provide(newRetrievalService); err != nil {
		return err
	}

	// 注册回答编排器
	if err := container.Provide(newOrchestrator); err != nil {
		return err
	}

	return nil
}

// collectionOptions 按集合定义拼装连接参数
func collectionOptions(cfg *config.Config, spec vectorstore.CollectionSpec,
	embedder embedding.Embedder, lock *gpu.Lock) vectorstore.Options {
	return vectorstore.Options{
		Address:    cfg.Milvus.Address(),
		Spec:       spec,
		Embedder:   embedder,
		GPULock:    lock,
		GPUTimeout: time.Duration(cfg.GPU.AcquireTimeout) * time.Second,
		BatchSize:  cfg.Sync.EmbedBatchSize,
	}
}

// syncFactory 同步管道的集合工厂
func syncFactory(cfg *config.Config, spec vectorstore.CollectionSpec,
	embedder embedding.Embedder, lock *gpu.Lock) syncpipe.CollectionFactory {
	return func(ctx context.Context) (syncpipe.Collection, error) {
		return vectorstore.NewCollection(ctx, collectionOptions(cfg, spec, embedder, lock))
	}
}

// retrievalFactory 检索服务的集合工厂
func retrievalFactory(cfg *config.Config, spec vectorstore.CollectionSpec,
	embedder embedding.Embedder, lock *gpu.Lock) retrieval.CollectionFactory {
	return func(ctx context.Context) (retrieval.Collection, error) {
		return vectorstore.NewCollection(ctx, collectionOptions(cfg, spec, embedder, lock))
	}
}

func newSyncers(cfg *config.Config, embedder embedding.Embedder, lock *gpu.Lock,
	addresses *storage.AddressSource, prompts *storage.PromptSource,
	pages *storage.WikiSource, topics *storage.TopicStore) *Syncers {
	return &Syncers{
		Address: syncpipe.NewAddressSyncer(addresses,
			syncFactory(cfg, vectorstore.AddressSpec(), embedder, lock), cfg.Sync),
		Prompt: syncpipe.NewPromptSyncer(prompts,
			syncFactory(cfg, vectorstore.PromptSpec(), embedder, lock), cfg.Sync),
		Wiki: syncpipe.NewWikiSyncer(pages, topics,
			syncFactory(cfg, vectorstore.WikiSpec(), embedder, lock),
			cfg.Wiki.BaseURL, cfg.Sync),
	}
}

func newRetrievalService(cfg *config.Config, embedder embedding.Embedder,
	lock *gpu.Lock, topics *storage.TopicStore) *retrieval.Service {
	factory := retrievalFactory(cfg, vectorstore.WikiSpec(), embedder, lock)
	return retrieval.NewService(factory, topics)
}

func newOrchestrator(cfg *config.Config) (*answer.Orchestrator, error) {
	byProvider := map[string]answer.Backend{}

	if cfg.Backends.MistralAPIKey != "" {
		client := mistral.NewClient(cfg.Backends.MistralAPIKey)
		byProvider["mistral"] = answer.NewMistralBackend(client, cfg.Backends.MistralModel)
	}
	if cfg.Backends.DeepSeekAPIKey != "" {
		byProvider["deepseek"] = answer.NewDeepSeekBackend(
			cfg.Backends.DeepSeekAPIKey, cfg.Backends.DeepSeekModel)
	}
	if cfg.Backends.OpenAIAPIKey != "" {
		backend, err := answer.NewOpenAIBackend(
			cfg.Backends.OpenAIAPIKey, cfg.Backends.OpenAIModel, cfg.Backends.Proxy)
		if err != nil {
			return nil, err
		}
		byProvider["openai"] = backend
	}

	// 按配置顺序排列，未配置密钥的后端不参与
	backends := make([]answer.Backend, 0, len(byProvider))
	for _, name := range cfg.Backends.DefaultOrder {
		if b, ok := byProvider[name]; ok {
			backends = append(backends, b)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no answer backends configured")
	}

	return answer.NewOrchestrator(backends,
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BackoffSeconds)*time.Second), nil
}
