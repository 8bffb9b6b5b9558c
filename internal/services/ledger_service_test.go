package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tally/internal/core"
	"tally/internal/storage"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	store, err := storage.NewLedgerRepository(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("NewLedgerRepository() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewLedgerService(store, nil, NewReportService(store))
}

func mustAddUser(t *testing.T, svc *LedgerService, name string) int64 {
	t.Helper()
	id, err := svc.AddUser(context.Background(), name)
	if err != nil {
		t.Fatalf("AddUser(%q) error = %v", name, err)
	}
	return id
}

func TestLedgerService_Users(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alice := mustAddUser(t, svc, "alice")
	mustAddUser(t, svc, "bob")

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}

	if err := svc.DeleteUser(ctx, alice); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if err := svc.DeleteUser(ctx, alice); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteUser() twice error = %v, want ErrNotFound", err)
	}
}

func TestLedgerService_Transactions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := mustAddUser(t, svc, "alice")

	id, err := svc.AddTransaction(ctx, core.Transaction{
		UserID:   alice,
		Kind:     core.Expense,
		Amount:   42.50,
		Category: "groceries",
		Date:     core.NewDate(2024, 3, 10),
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	txns, err := svc.ListTransactions(ctx, storage.TransactionFilter{UserID: alice})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txns) != 1 || txns[0].ID != id {
		t.Fatalf("ListTransactions() = %v, want one transaction with id %d", txns, id)
	}

	if err := svc.DeleteTransaction(ctx, id); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if err := svc.DeleteTransaction(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteTransaction() twice error = %v, want ErrNotFound", err)
	}
}

func TestLedgerService_SharedExpenses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := mustAddUser(t, svc, "alice")
	bob := mustAddUser(t, svc, "bob")

	id, err := svc.AddSharedExpense(ctx, core.SharedExpense{
		Title:       "rent",
		TotalAmount: 1000,
		Date:        core.NewDate(2024, 3, 1),
		PayerID:     alice,
		Category:    "housing",
		Splits: []core.Split{
			{UserID: alice, Kind: core.Percentage, Value: 50},
			{UserID: bob, Kind: core.Percentage, Value: 50},
		},
	})
	if err != nil {
		t.Fatalf("AddSharedExpense() error = %v", err)
	}

	e, err := svc.GetSharedExpense(ctx, id)
	if err != nil {
		t.Fatalf("GetSharedExpense() error = %v", err)
	}
	if len(e.Splits) != 2 {
		t.Errorf("len(Splits) = %d, want 2", len(e.Splits))
	}

	if err := svc.DeleteSharedExpense(ctx, id); err != nil {
		t.Fatalf("DeleteSharedExpense() error = %v", err)
	}
	if _, err := svc.GetSharedExpense(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSharedExpense() after delete error = %v, want ErrNotFound", err)
	}
}

func TestLedgerService_NilComponents(t *testing.T) {
	// Publishing and cache invalidation are optional side effects.
	svc := &LedgerService{}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() with nil components error = %v", err)
	}
}
