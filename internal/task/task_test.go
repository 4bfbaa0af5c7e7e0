package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
)

type fakeAvailability bool

func (f fakeAvailability) Available() bool { return bool(f) }

// fakeInvestments 按函数字段应答
type fakeInvestments struct {
	listFn   func(olderThan time.Time, limit int) ([]model.InvestmentModel, error)
	verifyFn func(ctx context.Context, id string) (*model.InvestmentModel, error)
}

func (f *fakeInvestments) ListPendingInvestments(olderThan time.Time, limit int) ([]model.InvestmentModel, error) {
	return f.listFn(olderThan, limit)
}

func (f *fakeInvestments) VerifyInvestment(ctx context.Context, id string) (*model.InvestmentModel, error) {
	return f.verifyFn(ctx, id)
}

func pendingRows(ids ...string) []model.InvestmentModel {
	rows := make([]model.InvestmentModel, 0, len(ids))
	for _, id := range ids {
		inv := model.InvestmentModel{Status: model.InvestmentStatusPending}
		inv.Id = id
		rows = append(rows, inv)
	}
	return rows
}

func TestPendingInvestmentJob_Run(t *testing.T) {
	outcomes := map[string]model.InvestmentStatus{
		"a": model.InvestmentStatusConfirmed,
		"b": model.InvestmentStatusFailed,
		"c": model.InvestmentStatusPending,
	}
	var cutoff time.Time
	fake := &fakeInvestments{
		listFn: func(olderThan time.Time, limit int) ([]model.InvestmentModel, error) {
			cutoff = olderThan
			if limit != 50 {
				t.Errorf("expected batch size 50, got %d", limit)
			}
			return pendingRows("a", "b", "c", "d"), nil
		},
		verifyFn: func(_ context.Context, id string) (*model.InvestmentModel, error) {
			status, ok := outcomes[id]
			if !ok {
				return nil, chain.ErrChainRead
			}
			return &model.InvestmentModel{Status: status}, nil
		},
	}

	job := NewPendingInvestmentJob(fake, fakeAvailability(true), time.Minute, 30*time.Second, 2, 50)
	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := VerifyResult{Checked: 4, Confirmed: 1, Failed: 1, Pending: 1, Errors: 1}
	if res != want {
		t.Fatalf("expected %+v, got %+v", want, res)
	}
	if time.Since(cutoff) < 30*time.Second {
		t.Fatalf("grace period not applied, cutoff %v", cutoff)
	}
}

func TestPendingInvestmentJob_SkipsWhenChainUnavailable(t *testing.T) {
	fake := &fakeInvestments{
		listFn: func(time.Time, int) ([]model.InvestmentModel, error) {
			t.Fatal("must not list pending investments while chain is unavailable")
			return nil, nil
		},
	}
	job := NewPendingInvestmentJob(fake, fakeAvailability(false), time.Minute, 0, 1, 10)
	res, err := job.Run(context.Background())
	if err != nil || res.Checked != 0 {
		t.Fatalf("expected no-op, got %+v err=%v", res, err)
	}
}

func TestPendingInvestmentJob_ListError(t *testing.T) {
	boom := errors.New("db down")
	fake := &fakeInvestments{listFn: func(time.Time, int) ([]model.InvestmentModel, error) { return nil, boom }}
	job := NewPendingInvestmentJob(fake, fakeAvailability(true), time.Minute, 0, 1, 10)
	if _, err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

type fakeAuditor struct {
	projects []model.ProjectModel
	audits   map[string]*logic.FundsAudit
}

func (f *fakeAuditor) ListAuditableProjects() ([]model.ProjectModel, error) {
	return f.projects, nil
}

func (f *fakeAuditor) AuditFunds(projectId string) (*logic.FundsAudit, error) {
	audit, ok := f.audits[projectId]
	if !ok {
		return nil, logic.ErrNotFound
	}
	return audit, nil
}

func TestFundsAuditJob_Run(t *testing.T) {
	projects := make([]model.ProjectModel, 3)
	for i, id := range []string{"p1", "p2", "p3"} {
		projects[i].Id = id
	}
	job := NewFundsAuditJob(&fakeAuditor{
		projects: projects,
		audits: map[string]*logic.FundsAudit{
			"p1": {ProjectId: "p1", Consistent: true},
			"p2": {ProjectId: "p2", Consistent: false},
		},
	}, time.Minute)

	audited, divergent, err := job.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if audited != 2 || divergent != 1 {
		t.Fatalf("expected 2 audited and 1 divergent, got %d/%d", audited, divergent)
	}
}

type fakeRetrier struct {
	calls int32
	limit int
}

func (f *fakeRetrier) RetryFailed(_ context.Context, limit int) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.limit = limit
	return 1, nil
}

func TestManager_RegisterAndExecute(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	retrier := &fakeRetrier{}
	job := NewEventRetryJob(retrier, time.Hour, 25)
	if err := m.Register(job); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(NewFundsAuditJob(&fakeAuditor{}, time.Hour)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	names := m.Jobs()
	if len(names) != 2 || names[0] != "chain_event_retry" || names[1] != "funds_audit" {
		t.Fatalf("unexpected jobs %v", names)
	}

	m.Start()
	job.Execute()
	m.Stop()

	if atomic.LoadInt32(&retrier.calls) != 1 || retrier.limit != 25 {
		t.Fatalf("retry job not executed with batch size, calls=%d limit=%d", retrier.calls, retrier.limit)
	}
}
