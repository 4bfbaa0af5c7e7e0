package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/cache"
	"github.com/infrachain/server/internal/chain"
	"github.com/shopspring/decimal"
)

// ChainReader 链上只读查询，由 chain.Adapter 实现
type ChainReader interface {
	Status(ctx context.Context) chain.Status
	GetProject(ctx context.Context, projectId int64) (*chain.OnChainProject, error)
	GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetAccruedInterest(ctx context.Context, address string, projectId int64) (decimal.Decimal, error)
	VerifyTransaction(ctx context.Context, hash string) (*chain.TxResult, error)
}

type BlockchainHandler struct {
	reader ChainReader
	cache  cache.Cache
}

// NewBlockchainHandler cache 为 nil 时每次都直接读链
func NewBlockchainHandler(reader ChainReader, c cache.Cache) *BlockchainHandler {
	return &BlockchainHandler{
		reader: reader,
		cache:  c,
	}
}

// BalanceResponse 代币余额
type BalanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// AccruedInterestResponse 链上应计利息
type AccruedInterestResponse struct {
	Address   string          `json:"address"`
	ProjectId int64           `json:"project_id"`
	Accrued   decimal.Decimal `json:"accrued"`
}

// Status 获取链适配器状态
func (h *BlockchainHandler) Status(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, "ok", h.reader.Status(c.Request.Context()))
}

// GetProject 获取链上项目信息
func (h *BlockchainHandler) GetProject(c *gin.Context) {
	projectId, ok := chainProjectId(c)
	if !ok {
		return
	}

	key := fmt.Sprintf("project:%d", projectId)
	project, err := cache.Remember(c.Request.Context(), h.cache, key, func(ctx context.Context) (*chain.OnChainProject, error) {
		return h.reader.GetProject(ctx, projectId)
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", project)
}

// GetBalance 获取地址的债券代币余额
func (h *BlockchainHandler) GetBalance(c *gin.Context) {
	address := c.Param("address")
	if !chain.IsValidAddress(address) {
		ErrorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	address = strings.ToLower(address)

	balance, err := cache.Remember(c.Request.Context(), h.cache, "balance:"+address, func(ctx context.Context) (decimal.Decimal, error) {
		return h.reader.GetTokenBalance(ctx, address)
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", BalanceResponse{Address: address, Balance: balance})
}

// GetAccruedInterest 获取地址在某项目的链上应计利息
func (h *BlockchainHandler) GetAccruedInterest(c *gin.Context) {
	address := c.Param("address")
	if !chain.IsValidAddress(address) {
		ErrorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}
	address = strings.ToLower(address)
	projectId, ok := chainProjectId(c)
	if !ok {
		return
	}

	key := fmt.Sprintf("interest:%s:%d", address, projectId)
	accrued, err := cache.Remember(c.Request.Context(), h.cache, key, func(ctx context.Context) (decimal.Decimal, error) {
		return h.reader.GetAccruedInterest(ctx, address, projectId)
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", AccruedInterestResponse{
		Address:   address,
		ProjectId: projectId,
		Accrued:   accrued,
	})
}

// GetTransaction 查询交易回执，结果随区块确认变化，不缓存
func (h *BlockchainHandler) GetTransaction(c *gin.Context) {
	result, err := h.reader.VerifyTransaction(c.Request.Context(), c.Param("hash"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", result)
}

func chainProjectId(c *gin.Context) (int64, bool) {
	projectId, err := strconv.ParseInt(c.Param("projectId"), 10, 64)
	if err != nil || projectId < 0 {
		ErrorResponse(c, http.StatusBadRequest, "invalid project id")
		return 0, false
	}
	return projectId, true
}
