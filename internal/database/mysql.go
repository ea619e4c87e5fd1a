package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/logger"
)

var WikiDB *gorm.DB

// InitWikiSource 连接BookStack的MySQL库（wiki页面数据源，只读）
func InitWikiSource() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(mysql.Open(cfg.Wiki.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wiki mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)

	WikiDB = db
	logger.Info("✅ Wiki MySQL connected successfully")
	return db, nil
}

// CloseWikiSource 关闭MySQL连接
func CloseWikiSource() error {
	if WikiDB == nil {
		return nil
	}
	sqlDB, err := WikiDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
