package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type InterestHandler struct {
	interestLogic *logic.InterestLogic
}

func NewInterestHandler(db *gorm.DB, reader logic.InterestReader) *InterestHandler {
	return &InterestHandler{
		interestLogic: logic.NewInterestLogic(db, reader),
	}
}

// ListMy 获取自己的利息台账
func (h *InterestHandler) ListMy(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	rows, err := h.interestLogic.ListMyInterest(principal)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", rows)
}

// GetProject 推进并返回某项目的利息台账
func (h *InterestHandler) GetProject(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	row, err := h.interestLogic.GetInterest(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", row)
}
