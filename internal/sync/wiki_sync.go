package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/storage/models"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// minPageTextLength 过短的wiki页面不入库
const minPageTextLength = 20

// pageFetcher wiki页面数据源
type pageFetcher interface {
	FetchPages() ([]models.WikiPage, error)
}

// topicRepository wiki同步依赖的主题存储操作子集
type topicRepository interface {
	ReplaceWikiPages(topics []models.StoredTopic) error
	GetAllTopics() ([]models.StoredTopic, error)
	DeleteByIDs(ids []string) (int64, error)
	Count() (int64, error)
}

// WikiSyncer WIKI两段式同步：MySQL页面→Postgres快照→向量集合
type WikiSyncer struct {
	source  pageFetcher
	topics  topicRepository
	factory CollectionFactory
	baseURL string
	cfg     config.SyncConfig
}

// NewWikiSyncer 创建wiki同步器
func NewWikiSyncer(source pageFetcher, topics topicRepository, factory CollectionFactory, baseURL string, cfg config.SyncConfig) *WikiSyncer {
	return &WikiSyncer{source: source, topics: topics, factory: factory, baseURL: baseURL, cfg: cfg}
}

// WikiReport wiki同步结果
type WikiReport struct {
	Imported   int
	TopicCount int64
	Deleted    int64
}

// Run 导入页面快照后重建向量集合，建索引并做近似去重，
// 去重删除的哈希级联删除Postgres快照，保持两个存储一致
func (s *WikiSyncer) Run(ctx context.Context) (*WikiReport, error) {
	r := newRun("wiki")

	imported, err := s.importPages()
	if err != nil {
		return nil, r.fail(err)
	}

	topics, err := s.topics.GetAllTopics()
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateBatch)
	records := make([]vectorstore.Record, 0, len(topics))
	for _, topic := range topics {
		records = append(records, vectorstore.Record{
			ID:   topic.Hash,
			Text: passageText(topic),
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

	if err := collection.Init(ctx); err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateEmbedAndInsert)
	if err := insertChunks(ctx, r, collection, records, s.cfg.InsertChunkSize); err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateBuildIndex)
	if err := collection.BuildIndex(ctx); err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateDeduplicate)
	duplicates, err := collection.Deduplicate(ctx, s.cfg.DedupThreshold)
	if err != nil {
		return nil, r.fail(err)
	}

	report := &WikiReport{Imported: imported}
	if len(duplicates) > 0 {
		ids := make([]string, 0, len(duplicates))
		for id := range duplicates {
			ids = append(ids, id)
		}
		deleted, err := s.topics.DeleteByIDs(ids)
		if err != nil {
			return nil, r.fail(err)
		}
		report.Deleted = deleted
		r.log.Info("Удалены дубликаты из записи системы", zap.Int64("count", deleted))
	}

	count, err := s.topics.Count()
	if err != nil {
		return nil, r.fail(err)
	}
	report.TopicCount = count

	r.done()
	return report, nil
}

// importPages MySQL页面导入Postgres快照
// 单页处理失败跳过该页继续，不中止导入
func (s *WikiSyncer) importPages() (int, error) {
	pages, err := s.source.FetchPages()
	if err != nil {
		return 0, err
	}

	topics := make([]models.StoredTopic, 0, len(pages))
	for _, page := range pages {
		text := strings.TrimSpace(page.PageText)
		if len(text) < minPageTextLength {
			continue
		}
		text = CleanText(squeezeNewlines(text))

		topics = append(topics, models.StoredTopic{
			Hash:     GenerateHash(text),
			BookName: page.ChapterName,
			Title:    page.PageName,
			Text:     text,
			URL:      fmt.Sprintf("%s/books/%s/page/%s", s.baseURL, page.BookSlug, page.PageSlug),
		})
	}

	if err := s.topics.ReplaceWikiPages(topics); err != nil {
		return 0, err
	}
	return len(topics), nil
}

// passageText 向量化用的文本：册名+标题+正文
func passageText(topic models.StoredTopic) string {
	return topic.BookName + "\n" + topic.Title + " " + topic.Text
}
