package worker

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/sheets/memory"
	"tally/internal/storage"
)

func newTestWorker(t *testing.T) (*ExportWorker, *services.LedgerService, *memory.Exporter) {
	t.Helper()
	store, err := storage.NewLedgerRepository(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("NewLedgerRepository() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reports := services.NewReportService(store)
	exporter := memory.New()
	return NewExportWorker(store, reports, exporter), services.NewLedgerService(store, nil, reports), exporter
}

func TestExportWorker_HandleEvent(t *testing.T) {
	w, svc, exporter := newTestWorker(t)
	ctx := context.Background()

	alice, err := svc.AddUser(ctx, "alice")
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	txID, err := svc.AddTransaction(ctx, core.Transaction{
		UserID:   alice,
		Kind:     core.Expense,
		Amount:   200,
		Category: "groceries",
		Date:     core.NewDate(2024, 3, 5),
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	ev := amqp.NewLedgerEvent(amqp.EventTransactionAdded, txID, 2024, 3)
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	report, ok := exporter.Report(2024, 3)
	if !ok {
		t.Fatal("expected an exported report for 2024-03")
	}
	if got := report.PerUser[alice].Expenses; math.Abs(got-200) > core.Epsilon {
		t.Errorf("exported expenses = %v, want 200", got)
	}
}

func TestExportWorker_EventWithoutPeriod(t *testing.T) {
	w, _, exporter := newTestWorker(t)
	ctx := context.Background()

	// User events carry no period; the worker falls back to the
	// current month.
	ev := amqp.NewLedgerEvent(amqp.EventUserAdded, 1, 0, 0)
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if exporter.Count() != 1 {
		t.Errorf("Count() = %d, want 1", exporter.Count())
	}
}

func TestExportWorker_ExportsFreshData(t *testing.T) {
	w, svc, exporter := newTestWorker(t)
	ctx := context.Background()

	alice, err := svc.AddUser(ctx, "alice")
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}

	if err := w.ExportMonth(ctx, 2024, 3); err != nil {
		t.Fatalf("ExportMonth() error = %v", err)
	}

	if _, err := svc.AddTransaction(ctx, core.Transaction{
		UserID:   alice,
		Kind:     core.Income,
		Amount:   1000,
		Category: "salary",
		Date:     core.NewDate(2024, 3, 1),
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	// The service invalidated the month, so a re-export sees the new
	// transaction.
	if err := w.ExportMonth(ctx, 2024, 3); err != nil {
		t.Fatalf("ExportMonth() error = %v", err)
	}
	report, _ := exporter.Report(2024, 3)
	if got := report.PerUser[alice].Income; math.Abs(got-1000) > core.Epsilon {
		t.Errorf("exported income = %v, want 1000", got)
	}
}
