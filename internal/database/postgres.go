package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/logger"
	"github.com/fridahub/retrieval-go/internal/storage/models"
)

var DB *gorm.DB

// InitPostgres 连接PostgreSQL（主题快照与对话日志的记录系统）
func InitPostgres() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	// 本服务只拥有主题存储和对话日志两张表，其余schema属于记录系统
	if err := db.AutoMigrate(&models.StoredTopic{}, &models.DialogueLog{}, &models.DialogueLogTopic{}, &models.ExtraTopic{}); err != nil {
		logger.Warn("Database migration warning: " + err.Error())
	}

	DB = db
	logger.Info("✅ PostgreSQL connected successfully")
	return db, nil
}

// ClosePostgres 关闭PostgreSQL连接
func ClosePostgres() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
