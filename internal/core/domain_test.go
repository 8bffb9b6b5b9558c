package core

import (
	"errors"
	"math"
	"testing"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-31", true},
		{" 2025-06-01 ", true},
		{"2025-13-01", false},
		{"2025-02-30", false},
		{"01/02/2025", false},
		{"", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected ErrValidation, got %v", tc.in, err)
			}
			continue
		}
		if d.IsZero() {
			t.Fatalf("%q parsed to zero date", tc.in)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		UserID:   1,
		Kind:     Expense,
		Amount:   12.50,
		Category: "grocery",
		Date:     NewDate(2025, 1, 15),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{UserID: 0, Kind: Expense, Amount: 1, Category: "c", Date: NewDate(2025, 1, 1)},
		{UserID: 1, Kind: "transfer", Amount: 1, Category: "c", Date: NewDate(2025, 1, 1)},
		{UserID: 1, Kind: Income, Amount: 0, Category: "c", Date: NewDate(2025, 1, 1)},
		{UserID: 1, Kind: Income, Amount: -5, Category: "c", Date: NewDate(2025, 1, 1)},
		{UserID: 1, Kind: Income, Amount: 1, Category: "", Date: NewDate(2025, 1, 1)},
		{UserID: 1, Kind: Income, Amount: 1, Category: "c", Date: Date{}},
	}
	for i, tx := range bads {
		err := tx.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected ErrValidation, got %v", i, err)
		}
	}
}

func sharedExpense(total float64, payer int64, splits ...Split) SharedExpense {
	return SharedExpense{
		Title:       "dinner",
		TotalAmount: total,
		Date:        NewDate(2025, 3, 10),
		PayerID:     payer,
		Category:    "dining",
		Splits:      splits,
	}
}

func TestSharedExpenseValidate(t *testing.T) {
	tests := []struct {
		name    string
		expense SharedExpense
		wantErr bool
	}{
		{
			name: "percentages summing to 100",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 50},
				Split{UserID: 2, Kind: Percentage, Value: 50},
			),
		},
		{
			name: "percentages within tolerance",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 50.005},
				Split{UserID: 2, Kind: Percentage, Value: 50},
			),
		},
		{
			name: "percentages summing to 99",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 49},
				Split{UserID: 2, Kind: Percentage, Value: 50},
			),
			wantErr: true,
		},
		{
			name: "percentages summing to 101",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 51},
				Split{UserID: 2, Kind: Percentage, Value: 50},
			),
			wantErr: true,
		},
		{
			name: "fixed amounts covering the total",
			expense: sharedExpense(90, 1,
				Split{UserID: 1, Kind: Fixed, Value: 30},
				Split{UserID: 2, Kind: Fixed, Value: 30},
				Split{UserID: 3, Kind: Fixed, Value: 30},
			),
		},
		{
			name: "fixed amounts short of the total",
			expense: sharedExpense(90, 1,
				Split{UserID: 1, Kind: Fixed, Value: 30},
				Split{UserID: 2, Kind: Fixed, Value: 30},
			),
			wantErr: true,
		},
		{
			name: "payer absent from splits",
			expense: sharedExpense(100, 3,
				Split{UserID: 1, Kind: Percentage, Value: 50},
				Split{UserID: 2, Kind: Percentage, Value: 50},
			),
			wantErr: true,
		},
		{
			name: "mixed split kinds",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 50},
				Split{UserID: 2, Kind: Fixed, Value: 50},
			),
			wantErr: true,
		},
		{
			name:    "no splits",
			expense: sharedExpense(100, 1),
			wantErr: true,
		},
		{
			name: "non-positive total",
			expense: sharedExpense(0, 1,
				Split{UserID: 1, Kind: Percentage, Value: 100},
			),
			wantErr: true,
		},
		{
			name: "negative split value",
			expense: sharedExpense(100, 1,
				Split{UserID: 1, Kind: Percentage, Value: 150},
				Split{UserID: 2, Kind: Percentage, Value: -50},
			),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.expense.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
		})
	}
}

func TestShares(t *testing.T) {
	e := sharedExpense(200, 1,
		Split{UserID: 1, Kind: Percentage, Value: 25},
		Split{UserID: 2, Kind: Percentage, Value: 75},
	)
	shares, err := e.Shares()
	if err != nil {
		t.Fatalf("Shares failed: %v", err)
	}
	if math.Abs(shares[1]-50) > Epsilon || math.Abs(shares[2]-150) > Epsilon {
		t.Fatalf("unexpected shares: %v", shares)
	}

	e = sharedExpense(90, 2,
		Split{UserID: 2, Kind: Fixed, Value: 40},
		Split{UserID: 3, Kind: Fixed, Value: 50},
	)
	shares, err = e.Shares()
	if err != nil {
		t.Fatalf("Shares failed: %v", err)
	}
	if math.Abs(shares[2]-40) > Epsilon || math.Abs(shares[3]-50) > Epsilon {
		t.Fatalf("unexpected shares: %v", shares)
	}
}

func TestSharesUnknownKind(t *testing.T) {
	e := sharedExpense(100, 1, Split{UserID: 1, Kind: "equal", Value: 100})
	if _, err := e.Shares(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1.00, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"0.01", 0.01, true},
		{"1.005", 1.01, true}, // half-up rounding
		{" 2.50 ", 2.50, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || math.Abs(got-tc.out) > 1e-9 {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}
