package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

// newTestEngine 与生产路由相同的中间件组合，只挂测试需要的路由
func newTestEngine(db *gorm.DB, verifier logic.TxVerifier) *gin.Engine {
	r := gin.New()
	r.Use(Identity(logic.NewUserLogic(db)))

	users := NewUserHandler(db)
	r.POST("/users", users.Register)
	r.GET("/users/me", RequireRoles(), users.Me)
	r.PATCH("/users/:id/deactivate", RequireRoles(model.RoleAdmin), users.Deactivate)
	r.PATCH("/users/:id/kyc", RequireRoles(model.RoleAdmin), users.SetKyc)

	projects := NewProjectHandler(db)
	r.GET("/projects", projects.GetProjects)
	r.GET("/projects/:id", projects.GetProject)
	r.POST("/projects", RequireRoles(model.RoleProjectManager, model.RoleAdmin), projects.CreateProject)
	r.PATCH("/projects/:id/status", RequireRoles(model.RoleProjectManager, model.RoleAdmin), projects.UpdateStatus)

	investments := NewInvestmentHandler(db, verifier)
	r.POST("/investments", RequireRoles(model.RoleInvestor), investments.Submit)
	r.GET("/investments/my", RequireRoles(model.RoleInvestor), investments.ListMy)
	r.GET("/investments/:id", RequireRoles(), investments.Get)
	r.POST("/investments/:id/verify", RequireRoles(), investments.Verify)

	notifications := NewNotificationHandler(db)
	r.GET("/notifications", RequireRoles(), notifications.List)
	r.PATCH("/notifications/:id/read", RequireRoles(), notifications.MarkRead)
	return r
}

func TestIdentity(t *testing.T) {
	db := openTestDB(t)
	r := newTestEngine(db, nil)
	investor := createUser(t, db, model.RoleInvestor)

	if w, _ := do(t, r, http.MethodGet, "/users/me", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", w.Code)
	}

	w, env := do(t, r, http.MethodGet, "/users/me", nil, investor)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("me: expected 200, got %d %s", w.Code, env.Error)
	}
	var me model.UserModel
	decodeData(t, env, &me)
	if me.Id != investor.Id {
		t.Fatalf("expected user %s, got %s", investor.Id, me.Id)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set(HeaderUserId, investor.Id)
	req.Header.Set(HeaderUserRole, "superuser")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown role: expected 401, got %d", rec.Code)
	}

	if w, _ := do(t, r, http.MethodPatch, "/users/"+investor.Id+"/deactivate", nil, investor); w.Code != http.StatusForbidden {
		t.Fatalf("investor on admin route: expected 403, got %d", w.Code)
	}

	admin := createUser(t, db, model.RoleAdmin)
	if w, env := do(t, r, http.MethodPatch, "/users/"+investor.Id+"/deactivate", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d %s", w.Code, env.Error)
	}
	w, env = do(t, r, http.MethodGet, "/users/me", nil, investor)
	if w.Code != http.StatusForbidden || env.Error == "" {
		t.Fatalf("deactivated user: expected 403 with error, got %d", w.Code)
	}
}

func TestRegisterAndKyc(t *testing.T) {
	db := openTestDB(t)
	r := newTestEngine(db, nil)

	wallet := "0xABCDEF" + strings.Repeat("0", 33) + "1"
	body := RegisterRequest{WalletAddress: wallet, Name: "Ada"}
	w, env := do(t, r, http.MethodPost, "/users", body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", w.Code, env.Error)
	}
	var user model.UserModel
	decodeData(t, env, &user)
	if user.Role != model.RoleInvestor || user.WalletAddress == nil ||
		*user.WalletAddress != strings.ToLower(wallet) {
		t.Fatalf("unexpected registered user %+v", user)
	}

	if w, _ := do(t, r, http.MethodPost, "/users", body, nil); w.Code != http.StatusConflict {
		t.Fatalf("duplicate wallet: expected 409, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/users", RegisterRequest{Name: "nobody"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing identity: expected 400, got %d", w.Code)
	}

	admin := createUser(t, db, model.RoleAdmin)
	w, env = do(t, r, http.MethodPatch, "/users/"+user.Id+"/kyc", KycRequest{KycStatus: model.KycVerified}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("kyc: expected 200, got %d %s", w.Code, env.Error)
	}
	decodeData(t, env, &user)
	if user.KycStatus != model.KycVerified {
		t.Fatalf("expected verified kyc, got %s", user.KycStatus)
	}
}

func TestProjectLifecycleAndPaging(t *testing.T) {
	db := openTestDB(t)
	r := newTestEngine(db, nil)
	manager := createUser(t, db, model.RoleProjectManager)
	investor := createUser(t, db, model.RoleInvestor)

	req := map[string]interface{}{
		"name":                 "Solar Farm",
		"funding_goal":         "5000",
		"interest_rate_annual": "8.5",
		"duration_months":      24,
	}
	if w, _ := do(t, r, http.MethodPost, "/projects", req, investor); w.Code != http.StatusForbidden {
		t.Fatalf("investor create: expected 403, got %d", w.Code)
	}
	w, env := do(t, r, http.MethodPost, "/projects", req, manager)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", w.Code, env.Error)
	}
	var project model.ProjectModel
	decodeData(t, env, &project)
	if project.Status != model.ProjectStatusDraft || project.ManagerId != manager.Id {
		t.Fatalf("unexpected project %+v", project)
	}

	path := "/projects/" + project.Id + "/status"
	w, env = do(t, r, http.MethodPatch, path, UpdateProjectStatusRequest{Status: model.ProjectStatusActive}, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d %s", w.Code, env.Error)
	}
	if w, _ := do(t, r, http.MethodPatch, path, UpdateProjectStatusRequest{Status: model.ProjectStatusCompleted}, manager); w.Code != http.StatusConflict {
		t.Fatalf("illegal transition: expected 409, got %d", w.Code)
	}

	for i := 0; i < 4; i++ {
		createProject(t, db, manager.Id, model.ProjectStatusActive)
	}
	w, env = do(t, r, http.MethodGet, "/projects?status=active&page=2&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var paged struct {
		Items      []model.ProjectModel `json:"items"`
		Pagination Pagination           `json:"pagination"`
	}
	decodeData(t, env, &paged)
	if len(paged.Items) != 2 || paged.Pagination.Total != 5 || paged.Pagination.TotalPage != 3 || paged.Pagination.Page != 2 {
		t.Fatalf("unexpected page %+v (%d items)", paged.Pagination, len(paged.Items))
	}

	if w, _ := do(t, r, http.MethodGet, "/projects/missing", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing project: expected 404, got %d", w.Code)
	}
}

func TestInvestmentSubmitAndVerify(t *testing.T) {
	db := openTestDB(t)
	block := uint64(77)
	verifier := &fakeVerifier{verifyFn: func(_ context.Context, hash string) (*chain.TxResult, error) {
		return &chain.TxResult{Hash: hash, Status: model.InvestmentStatusConfirmed, BlockNumber: &block}, nil
	}}
	r := newTestEngine(db, verifier)

	manager := createUser(t, db, model.RoleProjectManager)
	investor := createUser(t, db, model.RoleInvestor)
	other := createUser(t, db, model.RoleInvestor)
	auditor := createUser(t, db, model.RoleAuditor)
	project := createProject(t, db, manager.Id, model.ProjectStatusActive)

	submit := map[string]interface{}{
		"project_id":       project.Id,
		"amount":           "100",
		"transaction_hash": testHash("submit"),
	}
	w, env := do(t, r, http.MethodPost, "/investments", submit, investor)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d %s", w.Code, env.Error)
	}
	var investment model.InvestmentModel
	decodeData(t, env, &investment)
	if investment.Status != model.InvestmentStatusPending {
		t.Fatalf("expected pending, got %s", investment.Status)
	}

	if w, _ := do(t, r, http.MethodPost, "/investments", submit, investor); w.Code != http.StatusConflict {
		t.Fatalf("duplicate hash: expected 409, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/investments", submit, manager); w.Code != http.StatusForbidden {
		t.Fatalf("manager submit: expected 403, got %d", w.Code)
	}

	path := "/investments/" + investment.Id
	if w, _ := do(t, r, http.MethodGet, path, nil, other); w.Code != http.StatusForbidden {
		t.Fatalf("other investor get: expected 403, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, path, nil, auditor); w.Code != http.StatusOK {
		t.Fatalf("auditor get: expected 200, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, path+"/verify", nil, auditor); w.Code != http.StatusForbidden {
		t.Fatalf("auditor verify: expected 403, got %d", w.Code)
	}

	w, env = do(t, r, http.MethodPost, path+"/verify", nil, investor)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d %s", w.Code, env.Error)
	}
	decodeData(t, env, &investment)
	if investment.Status != model.InvestmentStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", investment.Status)
	}

	w, env = do(t, r, http.MethodGet, "/notifications?unread=true", nil, investor)
	if w.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", w.Code)
	}
	var paged struct {
		Items []model.NotificationModel `json:"items"`
	}
	decodeData(t, env, &paged)
	if len(paged.Items) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(paged.Items))
	}
	readPath := "/notifications/" + paged.Items[0].Id + "/read"
	if w, _ := do(t, r, http.MethodPatch, readPath, nil, other); w.Code != http.StatusNotFound {
		t.Fatalf("foreign notification: expected 404, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPatch, readPath, nil, investor); w.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d", w.Code)
	}
}

func TestInvestmentVerify_ChainUnavailable(t *testing.T) {
	db := openTestDB(t)
	verifier := &fakeVerifier{verifyFn: func(context.Context, string) (*chain.TxResult, error) {
		return nil, chain.ErrContractUnavailable
	}}
	r := newTestEngine(db, verifier)
	manager := createUser(t, db, model.RoleProjectManager)
	investor := createUser(t, db, model.RoleInvestor)
	project := createProject(t, db, manager.Id, model.ProjectStatusActive)

	_, env := do(t, r, http.MethodPost, "/investments", map[string]interface{}{
		"project_id":       project.Id,
		"amount":           "5",
		"transaction_hash": testHash("offline"),
	}, investor)
	var investment model.InvestmentModel
	decodeData(t, env, &investment)

	w, env := do(t, r, http.MethodPost, "/investments/"+investment.Id+"/verify", nil, investor)
	if w.Code != http.StatusServiceUnavailable || env.Error != "blockchain is unavailable" {
		t.Fatalf("expected 503 unavailable, got %d %q", w.Code, env.Error)
	}
}

func TestHandleError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{logic.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", logic.ErrForbidden), http.StatusForbidden},
		{logic.ErrInvalidTransition, http.StatusConflict},
		{logic.ErrDuplicateTransaction, http.StatusConflict},
		{logic.ErrAlreadyExists, http.StatusConflict},
		{logic.ErrOverclaimDetected, http.StatusConflict},
		{logic.ErrIncompleteEvidence, http.StatusBadRequest},
		{chain.ErrInvalidInput, http.StatusBadRequest},
		{chain.ErrContractUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: timeout", chain.ErrChainRead), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		HandleError(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	HandleError(c, errors.New("pq: password authentication failed"))
	if w.Body.String() != `{"error":"internal server error"}` {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}
