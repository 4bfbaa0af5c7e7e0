package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func createUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.UserModel {
	t.Helper()
	wallet := fmt.Sprintf("0x%040x", atomic.AddInt64(&walletSeq, 1))
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

func createProject(t *testing.T, db *gorm.DB, managerId string, status model.ProjectStatus) *model.ProjectModel {
	t.Helper()
	p := &model.ProjectModel{
		Name:               "Harbor Bridge",
		ManagerId:          managerId,
		FundingGoal:        decimal.NewFromInt(1000),
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

func testHash(seed string) string {
	h := fmt.Sprintf("%x", seed)
	return "0x" + strings.Repeat("0", 64-len(h)) + h
}

// envelope 同时覆盖成功和错误响应
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do 发起请求，as 为 nil 时不带身份头
func do(t *testing.T, r http.Handler, method, path string, body interface{}, as *model.UserModel) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(HeaderUserId, as.Id)
		req.Header.Set(HeaderUserRole, string(as.Role))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

// fakeVerifier 按函数字段应答回执查询
type fakeVerifier struct {
	verifyFn func(ctx context.Context, hash string) (*chain.TxResult, error)
}

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, hash string) (*chain.TxResult, error) {
	return f.verifyFn(ctx, hash)
}
