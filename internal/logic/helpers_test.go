package logic

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB 内存 sqlite，单连接保证所有查询看到同一个库
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

var walletSeq int64

func testWallet() string {
	n := atomic.AddInt64(&walletSeq, 1)
	return fmt.Sprintf("0x%040x", n)
}

func testHash(seed string) string {
	h := fmt.Sprintf("%x", seed)
	return "0x" + strings.Repeat("0", 64-len(h)) + h
}

func createUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.UserModel {
	t.Helper()
	wallet := testWallet()
	u := &model.UserModel{
		WalletAddress: &wallet,
		Name:          string(role),
		Role:          role,
		KycStatus:     model.KycVerified,
		TotalInvested: decimal.Zero,
		TotalTokens:   decimal.Zero,
		IsActive:      true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func principalOf(u *model.UserModel) Principal {
	return Principal{UserId: u.Id, Role: u.Role, WalletAddress: *u.WalletAddress}
}

func createProject(t *testing.T, db *gorm.DB, managerId string, goal int64, status model.ProjectStatus, chainId *int64) *model.ProjectModel {
	t.Helper()
	p := &model.ProjectModel{
		ChainProjectId:     chainId,
		Name:               "Harbor Bridge",
		ManagerId:          managerId,
		FundingGoal:        decimal.NewFromInt(goal),
		FundsRaised:        decimal.Zero,
		FundsReleased:      decimal.Zero,
		InterestRateAnnual: decimal.NewFromInt(10),
		DurationMonths:     12,
		Status:             status,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func reloadProject(t *testing.T, db *gorm.DB, id string) model.ProjectModel {
	t.Helper()
	var p model.ProjectModel
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return p
}

func int64Ptr(v int64) *int64 { return &v }

// fakeVerifier 按函数字段应答回执查询
type fakeVerifier struct {
	verifyFn func(ctx context.Context, hash string) (*chain.TxResult, error)
}

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, hash string) (*chain.TxResult, error) {
	return f.verifyFn(ctx, hash)
}

func receiptWith(status model.InvestmentStatus, block uint64) func(context.Context, string) (*chain.TxResult, error) {
	return func(_ context.Context, hash string) (*chain.TxResult, error) {
		res := &chain.TxResult{Hash: hash, Status: status}
		if status != model.InvestmentStatusPending {
			res.BlockNumber = &block
		}
		return res, nil
	}
}

// fakeInterestReader 按函数字段应答链上应计利息
type fakeInterestReader struct {
	accruedFn func(ctx context.Context, address string, projectId int64) (decimal.Decimal, error)
}

func (f *fakeInterestReader) GetAccruedInterest(ctx context.Context, address string, projectId int64) (decimal.Decimal, error) {
	return f.accruedFn(ctx, address, projectId)
}
