package settle

import (
	"fmt"

	"tally/internal/core"
)

type (
	// UserMonth summarizes one user's position for a month. Savings is
	// personal income minus personal expenses; the shared share is the
	// user's consumed slice of that month's shared expenses and is
	// reported separately, folded into TotalExpenses.
	UserMonth struct {
		Income        float64
		Expenses      float64
		SharedShare   float64
		TotalExpenses float64
		Savings       float64
	}

	// HouseholdMonth aggregates every user's month. Expenses include
	// shared shares, so household savings is income minus everything
	// the household spent.
	HouseholdMonth struct {
		Income   float64
		Expenses float64
		Savings  float64
	}

	// MonthlyReport is the combined view for one calendar month.
	MonthlyReport struct {
		Year       int
		Month      int
		PerUser    map[int64]UserMonth
		Household  HouseholdMonth
		ByCategory map[string]float64
	}
)

// MonthlyAnalysis builds the per-user, household, and category view for
// the given year and month from personal transactions and shared
// expenses. Records dated outside the month are ignored.
func MonthlyAnalysis(txns []core.Transaction, expenses []core.SharedExpense, year, month int) (MonthlyReport, error) {
	report := MonthlyReport{
		Year:       year,
		Month:      month,
		PerUser:    make(map[int64]UserMonth),
		ByCategory: make(map[string]float64),
	}

	for _, tx := range txns {
		if !tx.Date.InMonth(year, month) {
			continue
		}
		u := report.PerUser[tx.UserID]
		switch tx.Kind {
		case core.Income:
			u.Income += tx.Amount
		case core.Expense:
			u.Expenses += tx.Amount
			report.ByCategory[tx.Category] += tx.Amount
		default:
			return MonthlyReport{}, fmt.Errorf("%w: transaction %d has kind %q", core.ErrInvariant, tx.ID, string(tx.Kind))
		}
		report.PerUser[tx.UserID] = u
	}

	for _, e := range expenses {
		if !e.Date.InMonth(year, month) {
			continue
		}
		shares, err := e.Shares()
		if err != nil {
			return MonthlyReport{}, fmt.Errorf("expense %d: %w", e.ID, err)
		}
		for userID, share := range shares {
			u := report.PerUser[userID]
			u.SharedShare += share
			report.PerUser[userID] = u
		}
		report.ByCategory[e.Category] += e.TotalAmount
	}

	for userID, u := range report.PerUser {
		u.TotalExpenses = u.Expenses + u.SharedShare
		u.Savings = u.Income - u.Expenses
		report.PerUser[userID] = u

		report.Household.Income += u.Income
		report.Household.Expenses += u.TotalExpenses
	}
	report.Household.Savings = report.Household.Income - report.Household.Expenses

	return report, nil
}
