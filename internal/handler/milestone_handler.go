package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type MilestoneHandler struct {
	milestoneLogic *logic.MilestoneLogic
}

func NewMilestoneHandler(db *gorm.DB) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneLogic: logic.NewMilestoneLogic(db),
	}
}

// ListProject 获取项目里程碑
func (h *MilestoneHandler) ListProject(c *gin.Context) {
	milestones, err := h.milestoneLogic.ListProjectMilestones(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", milestones)
}

// Create 创建里程碑
func (h *MilestoneHandler) Create(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req CreateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	milestone, err := h.milestoneLogic.CreateMilestone(principal, logic.CreateMilestoneInput{
		ProjectId:      req.ProjectId,
		MilestoneIndex: req.MilestoneIndex,
		Title:          req.Title,
		Description:    req.Description,
		FundsToRelease: req.FundsToRelease,
		TargetDate:     req.TargetDate,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "里程碑创建成功", milestone)
}

// Update 更新或完成里程碑
func (h *MilestoneHandler) Update(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req UpdateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	milestone, err := h.milestoneLogic.UpdateMilestone(principal, c.Param("id"), logic.UpdateMilestoneInput{
		Title:        req.Title,
		Description:  req.Description,
		TargetDate:   req.TargetDate,
		Status:       req.Status,
		EvidenceHash: req.EvidenceHash,
		VerifiedBy:   req.VerifiedBy,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "里程碑已更新", milestone)
}
