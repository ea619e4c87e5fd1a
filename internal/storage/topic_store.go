package storage

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fridahub/retrieval-go/internal/storage/models"
)

// TopicText 按哈希解析出的主题全文
type TopicText struct {
	BookName string
	Text     string
	URL      string
}

// TopicStore 主题快照与对话日志的PostgreSQL访问层
type TopicStore struct {
	db *gorm.DB
}

// NewTopicStore 创建主题存储
func NewTopicStore(db *gorm.DB) *TopicStore {
	return &TopicStore{db: db}
}

// GetTextsByIDs 按哈希批量取回主题全文，未知哈希被忽略
func (s *TopicStore) GetTextsByIDs(ids []string) ([]TopicText, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var topics []models.StoredTopic
	if err := s.db.Where("hash IN ?", ids).Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve topic texts: %w", err)
	}

	texts := make([]TopicText, 0, len(topics))
	for _, topic := range topics {
		texts = append(texts, TopicText{
			BookName: topic.BookName,
			Text:     topic.Text,
			URL:      topic.URL,
		})
	}
	return texts, nil
}

// GetRecentTurns 用户最近n条对话，按时间从旧到新返回
func (s *TopicStore) GetRecentTurns(userID int64, n int) ([]models.DialogueLog, error) {
	if n <= 0 {
		n = 3
	}

	var turns []models.DialogueLog
	err := s.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(n).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load dialogue history: %w", err)
	}

	// 倒序查出最近n条后翻转为时间正序
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetAllTopics 全量主题，向量库重建时使用
func (s *TopicStore) GetAllTopics() ([]models.StoredTopic, error) {
	var topics []models.StoredTopic
	if err := s.db.Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	return topics, nil
}

// DeleteByIDs 按哈希删除主题，返回受影响行数
// 向量库去重后调用，保持两个存储一致
func (s *TopicStore) DeleteByIDs(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.Where("hash IN ?", ids).Delete(&models.StoredTopic{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete topics: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count 主题总数
func (s *TopicStore) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&models.StoredTopic{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	return count, nil
}

// InsertTopic 插入一条用户补充主题及其归属记录
func (s *TopicStore) InsertTopic(hash, title, text string, userID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		topic := models.StoredTopic{
			Hash:    hash,
			Title:   title,
			Text:    text,
			IsExtra: true,
		}
		if err := tx.Create(&topic).Error; err != nil {
			return fmt.Errorf("failed to insert topic: %w", err)
		}
		extra := models.ExtraTopic{Hash: hash, UserID: userID}
		if err := tx.Create(&extra).Error; err != nil {
			return fmt.Errorf("failed to insert extra topic record: %w", err)
		}
		return nil
	})
}

// ReplaceWikiPages 重新导入WIKI页面：清空非用户主题后批量插入
// 主键冲突跳过（同一文章内容哈希不变时保留原行）
func (s *TopicStore) ReplaceWikiPages(topics []models.StoredTopic) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_extra != ?", true).Delete(&models.StoredTopic{}).Error; err != nil {
			return fmt.Errorf("failed to clear wiki topics: %w", err)
		}
		if len(topics) == 0 {
			return nil
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).CreateInBatches(topics, 500).Error
		if err != nil {
			return fmt.Errorf("failed to insert wiki topics: %w", err)
		}
		return nil
	})
}

// LogDialogue 记录一轮对话及命中的主题哈希
func (s *TopicStore) LogDialogue(userID int64, query, response, status string, topicHashes []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		log := models.DialogueLog{
			UserID:         userID,
			Query:          query,
			Response:       response,
			ResponseStatus: status,
		}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("failed to insert dialogue log: %w", err)
		}
		for _, hash := range topicHashes {
			link := models.DialogueLogTopic{LogID: log.LogID, TopicHash: hash}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("failed to link topic hash: %w", err)
			}
		}
		return nil
	})
}
