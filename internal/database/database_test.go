package database

import (
	"path/filepath"
	"testing"

	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
)

func TestInit_SQLiteMigratesAllTables(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}
	db, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	for _, m := range model.AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("table for %T not created", m)
		}
	}
}

func TestInit_UnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestTransactionHashIsUnique(t *testing.T) {
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "u.db")})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	hash := "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000"
	inv := func() *model.InvestmentModel {
		return &model.InvestmentModel{
			InvestorId:      "u1",
			ProjectId:       "p1",
			Amount:          decimal.NewFromInt(100),
			TransactionHash: hash,
			Status:          model.InvestmentStatusPending,
		}
	}
	if err := db.Create(inv()).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := db.Create(inv()).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate hash")
	}
}

func TestUnknownStatusCannotBeWritten(t *testing.T) {
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	bad := &model.InvestmentModel{
		InvestorId:      "u1",
		ProjectId:       "p1",
		Amount:          decimal.NewFromInt(1),
		TransactionHash: "0x01",
		Status:          model.InvestmentStatus("refunded"),
	}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected write of unknown status to fail")
	}
}
