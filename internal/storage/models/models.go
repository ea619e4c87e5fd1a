package models

import (
	"time"
)

// StoredTopic 知识库主题快照表（WIKI文章与用户补充主题）
type StoredTopic struct {
	Hash     string `gorm:"primaryKey;column:hash;size:255" json:"hash"`
	BookName string `gorm:"column:book_name;size:255" json:"book_name"`
	Title    string `gorm:"column:title;size:500" json:"title"`
	Text     string `gorm:"type:text;not null" json:"text"`
	URL      string `gorm:"column:url;size:500" json:"url"`
	IsExtra  bool   `gorm:"column:is_extra;default:false" json:"is_extra"`
}

func (StoredTopic) TableName() string {
	return "frida_storage"
}

// ExtraTopic 用户补充主题的归属记录
type ExtraTopic struct {
	ID     uint   `gorm:"primaryKey;column:id" json:"id"`
	Hash   string `gorm:"column:hash;size:255;not null;index" json:"hash"`
	UserID int64  `gorm:"column:user_id;not null" json:"user_id"`
}

func (ExtraTopic) TableName() string {
	return "extra_topics"
}

// DialogueLog 用户对话日志，最近N条作为上下文
type DialogueLog struct {
	LogID          uint      `gorm:"primaryKey;column:log_id" json:"log_id"`
	UserID         int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	Query          string    `gorm:"type:text;not null" json:"query"`
	Response       string    `gorm:"type:text" json:"response"`
	ResponseStatus string    `gorm:"column:response_status;size:50" json:"response_status"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (DialogueLog) TableName() string {
	return "bot_logs"
}

// DialogueLogTopic 对话日志与命中主题的关联
type DialogueLogTopic struct {
	ID        uint   `gorm:"primaryKey;column:id" json:"id"`
	LogID     uint   `gorm:"column:log_id;not null;index" json:"log_id"`
	TopicHash string `gorm:"column:topic_hash;size:255;not null" json:"topic_hash"`
}

func (DialogueLogTopic) TableName() string {
	return "bot_log_topic_hashes"
}

// WikiPage BookStack导出的一页（MySQL数据源，只读）
type WikiPage struct {
	PageName    string
	PageText    string
	BookSlug    string
	PageSlug    string
	ChapterName string
}
