package services

import (
	"context"
	"fmt"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/settle"
	"tally/internal/storage"
)

const (
	reportCacheSize = 24
	reportCacheTTL  = 15 * time.Minute
)

// ReportService computes balances, settlement plans, and monthly
// reports from the store. Monthly reports are memoized per month until
// a write touches that month.
type ReportService struct {
	store  *storage.LedgerRepository
	months *cache.LRUCache[*settle.MonthlyReport]
}

func NewReportService(store *storage.LedgerRepository) *ReportService {
	return &ReportService{
		store:  store,
		months: cache.NewLRUCache[*settle.MonthlyReport](reportCacheSize, reportCacheTTL),
	}
}

// Balances returns the net position per user across all shared
// expenses. Positive means the household owes the user.
func (s *ReportService) Balances(ctx context.Context) (map[int64]float64, error) {
	expenses, err := s.store.ListSharedExpenses(ctx, storage.PeriodFilter{})
	if err != nil {
		return nil, err
	}
	return settle.Balances(expenses)
}

// Settlements returns a minimal transfer plan that clears all balances.
func (s *ReportService) Settlements(ctx context.Context) ([]settle.Transfer, error) {
	balances, err := s.Balances(ctx)
	if err != nil {
		return nil, err
	}
	return settle.Settlements(balances), nil
}

// MonthlyReport computes (or returns the memoized) report for one
// calendar month.
func (s *ReportService) MonthlyReport(ctx context.Context, year, month int) (*settle.MonthlyReport, error) {
	if year < 1 || month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: invalid period %d-%d", core.ErrValidation, year, month)
	}

	key := monthKey(year, month)
	if report, ok := s.months.Get(key); ok {
		return report, nil
	}

	period := storage.PeriodFilter{Year: year, Month: month}
	txns, err := s.store.ListTransactions(ctx, storage.TransactionFilter{Period: period})
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ListSharedExpenses(ctx, period)
	if err != nil {
		return nil, err
	}

	report, err := settle.MonthlyAnalysis(txns, expenses, year, month)
	if err != nil {
		return nil, err
	}

	s.months.Set(key, &report)
	return &report, nil
}

// UserMonthlySummary returns one user's income, expenses, shared share,
// and savings for a month. A known user with no activity gets a zero
// summary; an unknown user is ErrNotFound.
func (s *ReportService) UserMonthlySummary(ctx context.Context, userID int64, year, month int) (settle.UserMonth, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return settle.UserMonth{}, err
	}
	report, err := s.MonthlyReport(ctx, year, month)
	if err != nil {
		return settle.UserMonth{}, err
	}
	return report.PerUser[userID], nil
}

// Invalidate drops the memoized report for one month.
func (s *ReportService) Invalidate(year, month int) {
	s.months.Delete(monthKey(year, month))
}

// InvalidateAll drops every memoized report.
func (s *ReportService) InvalidateAll() {
	s.months.Clear()
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
