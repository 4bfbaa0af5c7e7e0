package logic

import (
	"github.com/infrachain/server/internal/model"
)

// Principal 由上游网关认证后的调用方身份
type Principal struct {
	UserId        string
	Role          model.UserRole
	WalletAddress string
}

// HasRole 调用方是否具有任一角色
func (p Principal) HasRole(roles ...model.UserRole) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsPrivileged 管理员和审计员可查看所有记录
func (p Principal) IsPrivileged() bool {
	return p.HasRole(model.RoleAdmin, model.RoleAuditor)
}

// Page 分页参数
type Page struct {
	Page     int
	PageSize int
}

const maxPageSize = 100

// Normalize 默认每页 20 条，最多 100 条
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.PageSize
}
