package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type ProjectHandler struct {
	projectLogic *logic.ProjectLogic
}

func NewProjectHandler(db *gorm.DB) *ProjectHandler {
	return &ProjectHandler{
		projectLogic: logic.NewProjectLogic(db),
	}
}

// CreateProject 创建项目
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.projectLogic.CreateProject(principal, logic.CreateProjectInput{
		ChainProjectId:     req.ChainProjectId,
		Name:               req.Name,
		Description:        req.Description,
		Location:           req.Location,
		Category:           req.Category,
		ManagerId:          req.ManagerId,
		FundingGoal:        req.FundingGoal,
		InterestRateAnnual: req.InterestRateAnnual,
		DurationMonths:     req.DurationMonths,
		TokenAddress:       req.TokenAddress,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "项目创建成功", project)
}

// GetProjects 获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	page := pageFromQuery(c)
	projects, total, err := h.projectLogic.ListProjects(c.Query("status"), page)
	if err != nil {
		HandleError(c, err)
		return
	}
	pagedResponse(c, projects, total, page)
}

// GetProject 获取单个项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.projectLogic.GetProject(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", project)
}

// GetProjectStats 获取项目统计，包含资金审计结果
func (h *ProjectHandler) GetProjectStats(c *gin.Context) {
	stats, err := h.projectLogic.GetProjectStats(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// UpdateStatus 项目状态流转
func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req UpdateProjectStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	project, err := h.projectLogic.UpdateStatus(principal, c.Param("id"), req.Status)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "项目状态已更新", project)
}
