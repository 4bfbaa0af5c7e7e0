package main

import (
	"fmt"

	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/logger"
	"gorm.io/gorm"
)

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}

// openDatabase 连接数据库并迁移表结构
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}
