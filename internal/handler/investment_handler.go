package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

type InvestmentHandler struct {
	investmentLogic *logic.InvestmentLogic
}

func NewInvestmentHandler(db *gorm.DB, verifier logic.TxVerifier) *InvestmentHandler {
	return &InvestmentHandler{
		investmentLogic: logic.NewInvestmentLogic(db, verifier),
	}
}

// Submit 提交投资交易哈希，创建待确认投资
func (h *InvestmentHandler) Submit(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req SubmitInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	investment, err := h.investmentLogic.SubmitInvestment(principal, req.ProjectId, req.Amount, req.TransactionHash)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "投资已提交，等待链上确认", investment)
}

// ListMy 获取自己的投资
func (h *InvestmentHandler) ListMy(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	investments, total, err := h.investmentLogic.ListMyInvestments(principal, page)
	if err != nil {
		HandleError(c, err)
		return
	}
	pagedResponse(c, investments, total, page)
}

// ListProject 获取项目的投资记录
func (h *InvestmentHandler) ListProject(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	investments, total, err := h.investmentLogic.ListProjectInvestments(principal, c.Param("id"), page)
	if err != nil {
		HandleError(c, err)
		return
	}
	pagedResponse(c, investments, total, page)
}

// Get 获取投资详情
func (h *InvestmentHandler) Get(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	investment, err := h.investmentLogic.GetInvestment(principal, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", investment)
}

// Verify 按需查询链上回执，只有投资者本人和管理员可触发
func (h *InvestmentHandler) Verify(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	investment, err := h.investmentLogic.GetInvestment(principal, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	if investment.InvestorId != principal.UserId && principal.Role != model.RoleAdmin {
		HandleError(c, logic.ErrForbidden)
		return
	}

	investment, err = h.investmentLogic.VerifyInvestment(c.Request.Context(), investment.Id)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", investment)
}
