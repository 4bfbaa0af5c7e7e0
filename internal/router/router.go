package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/cache"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/handler"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/metrics"
	"github.com/infrachain/server/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup 注册所有路由。chainCache 为 nil 时链上读取不经过缓存。
func Setup(db *gorm.DB, adapter *chain.Adapter, chainCache cache.Cache, cfg *config.Config) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(accessLog())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"service":         "infrachain",
			"chain_available": adapter.Available(),
		})
	})

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(handler.Identity(logic.NewUserLogic(db)))
	{
		// 用户
		userHandler := handler.NewUserHandler(db)
		users := api.Group("/users")
		{
			users.POST("", userHandler.Register)
			users.GET("/me", handler.RequireRoles(), userHandler.Me)
			users.PATCH("/:id/deactivate", handler.RequireRoles(model.RoleAdmin), userHandler.Deactivate)
			users.PATCH("/:id/kyc", handler.RequireRoles(model.RoleAdmin), userHandler.SetKyc)
		}

		// 项目
		projectHandler := handler.NewProjectHandler(db)
		projects := api.Group("/projects")
		{
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/stats", projectHandler.GetProjectStats)
			projects.POST("", handler.RequireRoles(model.RoleProjectManager, model.RoleAdmin), projectHandler.CreateProject)
			projects.PATCH("/:id/status", handler.RequireRoles(model.RoleProjectManager, model.RoleAdmin), projectHandler.UpdateStatus)
		}

		// 投资
		investmentHandler := handler.NewInvestmentHandler(db, adapter)
		investments := api.Group("/investments")
		{
			investments.POST("", handler.RequireRoles(model.RoleInvestor), investmentHandler.Submit)
			investments.GET("/my", handler.RequireRoles(model.RoleInvestor), investmentHandler.ListMy)
			investments.GET("/project/:id",
				handler.RequireRoles(model.RoleProjectManager, model.RoleAdmin, model.RoleAuditor), investmentHandler.ListProject)
			investments.GET("/:id", handler.RequireRoles(), investmentHandler.Get)
			investments.POST("/:id/verify", handler.RequireRoles(), investmentHandler.Verify)
		}

		// 里程碑
		milestoneHandler := handler.NewMilestoneHandler(db)
		milestones := api.Group("/milestones")
		{
			milestones.GET("/project/:id", milestoneHandler.ListProject)
			milestones.POST("", handler.RequireRoles(model.RoleProjectManager, model.RoleAdmin), milestoneHandler.Create)
			milestones.PATCH("/:id",
				handler.RequireRoles(model.RoleProjectManager, model.RoleAdmin, model.RoleAuditor), milestoneHandler.Update)
		}

		// 利息
		interestHandler := handler.NewInterestHandler(db, adapter)
		interest := api.Group("/interest", handler.RequireRoles(model.RoleInvestor))
		{
			interest.GET("/my", interestHandler.ListMy)
			interest.GET("/project/:id", interestHandler.GetProject)
		}

		// 交易
		transactionHandler := handler.NewTransactionHandler(db)
		transactions := api.Group("/transactions", handler.RequireRoles())
		{
			transactions.GET("/my", transactionHandler.ListMy)
			transactions.GET("/:hash", transactionHandler.GetByHash)
		}

		// 通知
		notificationHandler := handler.NewNotificationHandler(db)
		notifications := api.Group("/notifications", handler.RequireRoles())
		{
			notifications.GET("", notificationHandler.List)
			notifications.PATCH("/:id/read", notificationHandler.MarkRead)
		}

		// 链上只读查询
		blockchainHandler := handler.NewBlockchainHandler(adapter, chainCache)
		blockchain := api.Group("/blockchain")
		{
			blockchain.GET("/status", blockchainHandler.Status)
			blockchain.GET("/projects/:projectId", blockchainHandler.GetProject)
			blockchain.GET("/balance/:address", blockchainHandler.GetBalance)
			blockchain.GET("/interest/:address/:projectId", blockchainHandler.GetAccruedInterest)
			blockchain.GET("/tx/:hash", blockchainHandler.GetTransaction)
		}
	}

	return r
}

// accessLog 访问日志
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed")
			return
		}
		log.Debug("request served")
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers",
			"Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-User-Id, X-User-Role, X-Wallet-Address")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
