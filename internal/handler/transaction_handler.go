package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type TransactionHandler struct {
	transactionLogic *logic.TransactionLogic
}

func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{
		transactionLogic: logic.NewTransactionLogic(db),
	}
}

// ListMy 获取自己的交易记录
func (h *TransactionHandler) ListMy(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	transactions, total, err := h.transactionLogic.ListMyTransactions(principal, page)
	if err != nil {
		HandleError(c, err)
		return
	}
	pagedResponse(c, transactions, total, page)
}

// GetByHash 根据哈希获取交易记录
func (h *TransactionHandler) GetByHash(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	transaction, err := h.transactionLogic.GetTransactionByHash(principal, c.Param("hash"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", transaction)
}
