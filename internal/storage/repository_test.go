package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"tally/internal/core"
)

func newTestRepo(t *testing.T) *LedgerRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewLedgerRepository(dbPath)
	if err != nil {
		t.Fatalf("NewLedgerRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustAddUser(t *testing.T, repo *LedgerRepository, name string) int64 {
	t.Helper()
	id, err := repo.AddUser(context.Background(), name)
	if err != nil {
		t.Fatalf("AddUser(%q) failed: %v", name, err)
	}
	return id
}

func TestAddUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice := mustAddUser(t, repo, "Alice")
	bob := mustAddUser(t, repo, "Bob")
	if alice == bob {
		t.Fatalf("expected distinct ids, got %d twice", alice)
	}

	t.Run("duplicate name rejected", func(t *testing.T) {
		if _, err := repo.AddUser(ctx, "Alice"); !errors.Is(err, core.ErrDuplicateName) {
			t.Fatalf("expected ErrDuplicateName, got %v", err)
		}
	})

	t.Run("blank name rejected", func(t *testing.T) {
		if _, err := repo.AddUser(ctx, "   "); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("list ordered by name", func(t *testing.T) {
		users, err := repo.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		var names []string
		for _, u := range users {
			names = append(names, u.Name)
		}
		if !reflect.DeepEqual(names, []string{"Alice", "Bob"}) {
			t.Fatalf("unexpected names: %v", names)
		}
	})
}

func TestTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := mustAddUser(t, repo, "Alice")
	bob := mustAddUser(t, repo, "Bob")

	add := func(userID int64, kind core.TransactionKind, amount float64, category, date string) int64 {
		t.Helper()
		d, err := core.ParseDate(date)
		if err != nil {
			t.Fatal(err)
		}
		id, err := repo.AddTransaction(ctx, core.Transaction{
			UserID: userID, Kind: kind, Amount: amount, Category: category, Date: d,
		})
		if err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		return id
	}

	add(alice, core.Income, 1000, "salary", "2025-04-01")
	add(alice, core.Expense, 55.20, "grocery", "2025-04-05")
	add(bob, core.Expense, 12, "dining", "2025-04-07")
	add(alice, core.Expense, 80, "rent", "2025-03-28")

	t.Run("unknown user rejected", func(t *testing.T) {
		d, _ := core.ParseDate("2025-04-01")
		_, err := repo.AddTransaction(ctx, core.Transaction{
			UserID: 999, Kind: core.Expense, Amount: 5, Category: "c", Date: d,
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid kind rejected", func(t *testing.T) {
		d, _ := core.ParseDate("2025-04-01")
		_, err := repo.AddTransaction(ctx, core.Transaction{
			UserID: alice, Kind: "transfer", Amount: 5, Category: "c", Date: d,
		})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("filter by user", func(t *testing.T) {
		txns, err := repo.ListTransactions(ctx, TransactionFilter{UserID: bob})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(txns) != 1 || txns[0].UserID != bob {
			t.Fatalf("unexpected transactions: %+v", txns)
		}
	})

	t.Run("filter by period", func(t *testing.T) {
		txns, err := repo.ListTransactions(ctx, TransactionFilter{
			UserID: alice,
			Period: PeriodFilter{Year: 2025, Month: 4},
		})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(txns) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(txns))
		}
		// Newest first
		if txns[0].Date.String() != "2025-04-05" || txns[1].Date.String() != "2025-04-01" {
			t.Fatalf("unexpected order: %s, %s", txns[0].Date, txns[1].Date)
		}
	})

	t.Run("month without year rejected", func(t *testing.T) {
		_, err := repo.ListTransactions(ctx, TransactionFilter{Period: PeriodFilter{Month: 4}})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func twoWaySplit(a, b int64) []core.Split {
	return []core.Split{
		{UserID: a, Kind: core.Percentage, Value: 50},
		{UserID: b, Kind: core.Percentage, Value: 50},
	}
}

func TestSharedExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := mustAddUser(t, repo, "Alice")
	bob := mustAddUser(t, repo, "Bob")

	date, _ := core.ParseDate("2025-04-15")
	valid := core.SharedExpense{
		Title: "utilities", TotalAmount: 100, Date: date,
		PayerID: alice, Category: "rent",
		Splits: twoWaySplit(alice, bob),
	}

	id, err := repo.AddSharedExpense(ctx, valid)
	if err != nil {
		t.Fatalf("AddSharedExpense failed: %v", err)
	}

	t.Run("get with splits and shares", func(t *testing.T) {
		e, err := repo.GetSharedExpense(ctx, id)
		if err != nil {
			t.Fatalf("GetSharedExpense failed: %v", err)
		}
		if len(e.Splits) != 2 {
			t.Fatalf("expected 2 splits, got %d", len(e.Splits))
		}
		shares, err := e.Shares()
		if err != nil {
			t.Fatalf("Shares failed: %v", err)
		}
		if math.Abs(shares[alice]-50) > core.Epsilon || math.Abs(shares[bob]-50) > core.Epsilon {
			t.Fatalf("unexpected shares: %v", shares)
		}
	})

	t.Run("unknown participant is a validation failure", func(t *testing.T) {
		bad := valid
		bad.Splits = twoWaySplit(alice, 999)
		if _, err := repo.AddSharedExpense(ctx, bad); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("payer missing from splits rejected", func(t *testing.T) {
		bad := valid
		bad.PayerID = bob
		bad.Splits = []core.Split{{UserID: alice, Kind: core.Percentage, Value: 100}}
		if _, err := repo.AddSharedExpense(ctx, bad); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("failed write leaves no partial rows", func(t *testing.T) {
		before, err := repo.ListSharedExpenses(ctx, PeriodFilter{})
		if err != nil {
			t.Fatal(err)
		}
		bad := valid
		bad.Splits = []core.Split{
			{UserID: alice, Kind: core.Percentage, Value: 60},
			{UserID: bob, Kind: core.Percentage, Value: 60},
		}
		if _, err := repo.AddSharedExpense(ctx, bad); err == nil {
			t.Fatal("expected error")
		}
		after, err := repo.ListSharedExpenses(ctx, PeriodFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(after) != len(before) {
			t.Fatalf("partial write observable: %d expenses before, %d after", len(before), len(after))
		}
	})

	t.Run("list is idempotent", func(t *testing.T) {
		first, err := repo.ListSharedExpenses(ctx, PeriodFilter{})
		if err != nil {
			t.Fatal(err)
		}
		second, err := repo.ListSharedExpenses(ctx, PeriodFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("lists differ:\n%+v\n%+v", first, second)
		}
	})

	t.Run("delete removes expense and splits", func(t *testing.T) {
		if err := repo.DeleteSharedExpense(ctx, id); err != nil {
			t.Fatalf("DeleteSharedExpense failed: %v", err)
		}
		if _, err := repo.GetSharedExpense(ctx, id); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := repo.DeleteSharedExpense(ctx, id); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestDeleteUserCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := mustAddUser(t, repo, "Alice")
	bob := mustAddUser(t, repo, "Bob")
	carol := mustAddUser(t, repo, "Carol")

	date, _ := core.ParseDate("2025-05-01")
	if _, err := repo.AddTransaction(ctx, core.Transaction{
		UserID: alice, Kind: core.Expense, Amount: 30, Category: "grocery", Date: date,
	}); err != nil {
		t.Fatal(err)
	}

	// Alice pays one expense; Bob pays another that Alice participates in.
	if _, err := repo.AddSharedExpense(ctx, core.SharedExpense{
		Title: "paid by alice", TotalAmount: 100, Date: date,
		PayerID: alice, Category: "dining", Splits: twoWaySplit(alice, bob),
	}); err != nil {
		t.Fatal(err)
	}
	bobExpense, err := repo.AddSharedExpense(ctx, core.SharedExpense{
		Title: "paid by bob", TotalAmount: 90, Date: date,
		PayerID: bob, Category: "dining",
		Splits: []core.Split{
			{UserID: bob, Kind: core.Fixed, Value: 30},
			{UserID: alice, Kind: core.Fixed, Value: 30},
			{UserID: carol, Kind: core.Fixed, Value: 30},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteUser(ctx, alice); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	txns, err := repo.ListTransactions(ctx, TransactionFilter{UserID: alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 0 {
		t.Errorf("expected no transactions for deleted user, got %d", len(txns))
	}

	expenses, err := repo.ListSharedExpenses(ctx, PeriodFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected only bob's expense to survive, got %d", len(expenses))
	}
	if expenses[0].ID != bobExpense {
		t.Fatalf("unexpected surviving expense %d", expenses[0].ID)
	}
	for _, s := range expenses[0].Splits {
		if s.UserID == alice {
			t.Errorf("split still references deleted user: %+v", s)
		}
	}
	if len(expenses[0].Splits) != 2 {
		t.Errorf("expected 2 surviving splits, got %d", len(expenses[0].Splits))
	}

	if err := repo.DeleteUser(ctx, alice); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
