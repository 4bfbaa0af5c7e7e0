package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/logic"
)

// Response 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Pagination 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// PagedData 分页列表
type PagedData struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// HandleError 把业务错误映射为 HTTP 状态码。5xx 不返回内部错误信息。
func HandleError(c *gin.Context, err error) {
	var ve *logic.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, chain.ErrInvalidInput),
		errors.Is(err, logic.ErrIncompleteEvidence):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, logic.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, logic.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, logic.ErrInvalidTransition),
		errors.Is(err, logic.ErrDuplicateTransaction),
		errors.Is(err, logic.ErrAlreadyExists),
		errors.Is(err, logic.ErrOverclaimDetected):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, chain.ErrContractUnavailable):
		ErrorResponse(c, http.StatusServiceUnavailable, "blockchain is unavailable")
	case errors.Is(err, chain.ErrChainRead):
		logger.Warn("Chain read failed on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		ErrorResponse(c, http.StatusBadGateway, "blockchain read failed")
	default:
		logger.Error("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

// pageFromQuery 读取分页参数，非法值交给 logic 层归一化
func pageFromQuery(c *gin.Context) logic.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return logic.Page{Page: page, PageSize: pageSize}
}

// pagedResponse 分页响应
func pagedResponse(c *gin.Context, items interface{}, total int64, page logic.Page) {
	page = page.Normalize()
	totalPage := (total + int64(page.PageSize) - 1) / int64(page.PageSize)
	SuccessResponse(c, http.StatusOK, "ok", PagedData{
		Items: items,
		Pagination: Pagination{
			Page:      page.Page,
			PageSize:  page.PageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}
