package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type UserHandler struct {
	userLogic *logic.UserLogic
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{
		userLogic: logic.NewUserLogic(db),
	}
}

// Register 注册用户
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userLogic.Register(logic.RegisterInput{
		WalletAddress: req.WalletAddress,
		Email:         req.Email,
		Name:          req.Name,
		Role:          req.Role,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "用户注册成功", user)
}

// Me 获取当前用户
func (h *UserHandler) Me(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	user, err := h.userLogic.GetUser(principal.UserId)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", user)
}

// Deactivate 停用用户
func (h *UserHandler) Deactivate(c *gin.Context) {
	user, err := h.userLogic.Deactivate(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "用户已停用", user)
}

// SetKyc 设置 KYC 状态
func (h *UserHandler) SetKyc(c *gin.Context) {
	var req KycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.userLogic.SetKycStatus(c.Param("id"), req.KycStatus)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "KYC状态已更新", user)
}
