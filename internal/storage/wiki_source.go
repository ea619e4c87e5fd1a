package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fridahub/retrieval-go/internal/storage/models"
)

// WikiSource BookStack（MySQL）页面数据源，只读
type WikiSource struct {
	db *gorm.DB
}

// NewWikiSource 创建wiki数据源
func NewWikiSource(db *gorm.DB) *WikiSource {
	return &WikiSource{db: db}
}

// FetchPages 拉取全部符合条件的wiki页面
// 排除服务书架（1、10）并过滤空文本页面
func (s *WikiSource) FetchPages() ([]models.WikiPage, error) {
	rows, err := s.db.Raw(`
		SELECT DISTINCT p.name, p.text, b.slug, p.slug, c.name
		FROM pages p
		JOIN books b ON p.book_id = b.id
		LEFT JOIN chapters c ON p.chapter_id = c.id
		JOIN bookshelves_books bb ON bb.book_id = b.id
		WHERE bb.bookshelf_id NOT IN (1, 10) AND p.text <> ''
	`).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query wiki pages: %w", err)
	}
	defer rows.Close()

	var pages []models.WikiPage
	for rows.Next() {
		var page models.WikiPage
		var chapterName *string
		if err := rows.Scan(&page.PageName, &page.PageText, &page.BookSlug, &page.PageSlug, &chapterName); err != nil {
			return nil, fmt.Errorf("failed to scan wiki page: %w", err)
		}
		if chapterName != nil {
			page.ChapterName = *chapterName
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wiki pages: %w", err)
	}
	return pages, nil
}
