package logic

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

// UserLogic 用户业务逻辑
type UserLogic struct {
	db *gorm.DB
}

// NewUserLogic 创建用户业务逻辑
func NewUserLogic(db *gorm.DB) *UserLogic {
	return &UserLogic{db: db}
}

// RegisterInput 注册参数，钱包地址和邮箱至少提供一个
type RegisterInput struct {
	WalletAddress string
	Email         string
	Name          string
	Role          model.UserRole
}

// Register 注册用户。公开注册只允许投资者和项目经理角色。
func (u *UserLogic) Register(in RegisterInput) (*model.UserModel, error) {
	if in.WalletAddress == "" && in.Email == "" {
		return nil, newValidationError("wallet_address", "wallet address or email is required")
	}
	if in.Role == "" {
		in.Role = model.RoleInvestor
	}
	if in.Role != model.RoleInvestor && in.Role != model.RoleProjectManager {
		return nil, newValidationError("role", "only investor or project_manager can self-register")
	}

	user := &model.UserModel{
		Name:      strings.TrimSpace(in.Name),
		Role:      in.Role,
		KycStatus: model.KycPending,
		IsActive:  true,
	}
	if in.WalletAddress != "" {
		if !chain.IsValidAddress(in.WalletAddress) {
			return nil, newValidationError("wallet_address", "malformed address")
		}
		wallet := strings.ToLower(in.WalletAddress)
		user.WalletAddress = &wallet
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil {
			return nil, newValidationError("email", "malformed email")
		}
		email := strings.ToLower(addr.Address)
		user.Email = &email
	}

	if err := u.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("wallet address or email: %w", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return user, nil
}

// GetUser 获取用户
func (u *UserLogic) GetUser(id string) (*model.UserModel, error) {
	var user model.UserModel
	if err := findOne(u.db, &user, "user", "id = ?", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByWallet 根据钱包地址获取用户
func (u *UserLogic) GetUserByWallet(wallet string) (*model.UserModel, error) {
	var user model.UserModel
	if err := findOne(u.db, &user, "user", "wallet_address = ?", strings.ToLower(wallet)); err != nil {
		return nil, err
	}
	return &user, nil
}

// Deactivate 停用用户，记录保留
func (u *UserLogic) Deactivate(id string) (*model.UserModel, error) {
	user, err := u.GetUser(id)
	if err != nil {
		return nil, err
	}
	if err := u.db.Model(user).Update("is_active", false).Error; err != nil {
		return nil, fmt.Errorf("停用用户失败: %w", err)
	}
	user.IsActive = false
	return user, nil
}

// SetKycStatus 设置 KYC 状态
func (u *UserLogic) SetKycStatus(id string, status model.KycStatus) (*model.UserModel, error) {
	if !status.Valid() {
		return nil, newValidationError("kyc_status", "must be pending, verified or rejected")
	}
	user, err := u.GetUser(id)
	if err != nil {
		return nil, err
	}
	if err := u.db.Model(user).Update("kyc_status", status).Error; err != nil {
		return nil, fmt.Errorf("更新KYC状态失败: %w", err)
	}
	user.KycStatus = status
	return user, nil
}
