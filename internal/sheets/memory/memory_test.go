package memory

import (
	"context"
	"testing"

	"tally/internal/settle"
)

func TestExporter(t *testing.T) {
	e := New()
	ctx := context.Background()

	if _, ok := e.Report(2024, 3); ok {
		t.Error("Report() should miss before any export")
	}

	ref, err := e.WriteMonthlyReport(ctx, &settle.MonthlyReport{Year: 2024, Month: 3}, nil)
	if err != nil {
		t.Fatalf("WriteMonthlyReport() error = %v", err)
	}
	if ref != "mem:2024-03" {
		t.Errorf("ref = %q, want %q", ref, "mem:2024-03")
	}

	// Re-export replaces the stored report for the same month.
	updated := &settle.MonthlyReport{Year: 2024, Month: 3, Household: settle.HouseholdMonth{Income: 100}}
	if _, err := e.WriteMonthlyReport(ctx, updated, nil); err != nil {
		t.Fatalf("WriteMonthlyReport() error = %v", err)
	}

	got, ok := e.Report(2024, 3)
	if !ok {
		t.Fatal("Report() should find exported month")
	}
	if got.Household.Income != 100 {
		t.Errorf("Household.Income = %v, want 100", got.Household.Income)
	}
	if e.Count() != 1 {
		t.Errorf("Count() = %d, want 1", e.Count())
	}
}
