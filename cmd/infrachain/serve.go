package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/cache"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/monitor"
	"github.com/infrachain/server/internal/router"
	"github.com/infrachain/server/internal/task"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, chain event monitor and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// 链不可用时服务仍然启动，链相关接口返回 503
	adapter := chain.NewAdapter(cfg.Chain)
	defer adapter.Close()

	var chainCache cache.Cache
	if cfg.Redis.Enabled {
		rc, err := cache.OpenRedis(cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, chain reads will not be cached: %v", err)
		} else {
			defer rc.Close()
			chainCache = rc
		}
	}

	eventMonitor := newEventMonitor(db, adapter)
	if err := eventMonitor.Start(); err != nil {
		return fmt.Errorf("failed to start event monitor: %w", err)
	}
	defer eventMonitor.Stop()

	taskManager, err := newTaskManager(cfg, db, adapter, eventMonitor)
	if err != nil {
		return err
	}
	taskManager.Start()
	defer taskManager.Stop()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(db, adapter, chainCache, cfg),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	logger.Info("Server exited")
	return nil
}

func newEventMonitor(db *gorm.DB, adapter *chain.Adapter) *monitor.EventMonitor {
	processors := monitor.NewProcessorManager(
		monitor.NewInvestmentProcessor(logic.NewInvestmentLogic(db, adapter)),
		monitor.NewMilestoneProcessor(logic.NewMilestoneLogic(db)),
		monitor.NewInterestClaimProcessor(logic.NewInterestLogic(db, adapter)),
	)
	return monitor.NewEventMonitor(adapter, db, processors)
}

func newTaskManager(cfg *config.Config, db *gorm.DB, adapter *chain.Adapter, retrier task.EventRetrier) (*task.Manager, error) {
	manager, err := task.NewManager()
	if err != nil {
		return nil, err
	}

	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	jobs := []task.Job{
		task.NewPendingInvestmentJob(logic.NewInvestmentLogic(db, adapter), adapter,
			seconds(cfg.Task.VerifyInterval), seconds(cfg.Task.GracePeriod), cfg.Task.Workers, cfg.Task.BatchSize),
		task.NewFundsAuditJob(logic.NewProjectLogic(db), seconds(cfg.Task.AuditInterval)),
		task.NewEventRetryJob(retrier, seconds(cfg.Task.RetryInterval), cfg.Task.BatchSize),
	}
	for _, job := range jobs {
		if err := manager.Register(job); err != nil {
			return nil, err
		}
	}
	return manager, nil
}
