package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
)

const (
	HeaderUserId        = "X-User-Id"
	HeaderUserRole      = "X-User-Role"
	HeaderWalletAddress = "X-Wallet-Address"

	principalKey = "principal"
)

// UserLookup 由 logic.UserLogic 实现
type UserLookup interface {
	GetUser(id string) (*model.UserModel, error)
}

// Identity 从上游网关注入的请求头读取调用方身份。没有身份头的请求作为匿名请求继续处理。
func Identity(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := strings.TrimSpace(c.GetHeader(HeaderUserId))
		if userId == "" {
			c.Next()
			return
		}

		role := model.UserRole(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		if !role.Valid() {
			ErrorResponse(c, http.StatusUnauthorized, "unknown user role")
			return
		}
		principal := logic.Principal{
			UserId:        userId,
			Role:          role,
			WalletAddress: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderWalletAddress))),
		}

		user, err := users.GetUser(userId)
		switch {
		case errors.Is(err, logic.ErrNotFound):
		case err != nil:
			HandleError(c, err)
			return
		case !user.IsActive:
			ErrorResponse(c, http.StatusForbidden, "user is deactivated")
			return
		case principal.WalletAddress == "" && user.WalletAddress != nil:
			principal.WalletAddress = *user.WalletAddress
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRoles 要求已认证且具有任一角色，不传角色时只要求已认证
func RequireRoles(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			ErrorResponse(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if len(roles) > 0 && !principal.HasRole(roles...) {
			ErrorResponse(c, http.StatusForbidden, logic.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (logic.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return logic.Principal{}, false
	}
	principal, ok := v.(logic.Principal)
	return principal, ok
}

// mustPrincipal 路由已挂 RequireRoles，这里只做兜底
func mustPrincipal(c *gin.Context) (logic.Principal, bool) {
	principal, ok := principalFrom(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "authentication required")
	}
	return principal, ok
}
