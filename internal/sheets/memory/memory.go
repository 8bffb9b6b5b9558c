// Package memory is an in-process ReportWriter used in tests and when
// no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
	"tally/internal/settle"
)

type Exporter struct {
	mu      sync.Mutex
	reports map[string]*settle.MonthlyReport
}

func New() *Exporter {
	return &Exporter{reports: make(map[string]*settle.MonthlyReport)}
}

// WriteMonthlyReport keeps the latest report per month and returns a
// synthetic reference.
func (e *Exporter) WriteMonthlyReport(_ context.Context, report *settle.MonthlyReport, _ []core.User) (string, error) {
	key := fmt.Sprintf("%04d-%02d", report.Year, report.Month)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports[key] = report
	return "mem:" + key, nil
}

// Report returns the last exported report for the month, if any.
func (e *Exporter) Report(year, month int) (*settle.MonthlyReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[fmt.Sprintf("%04d-%02d", year, month)]
	return r, ok
}

// Count returns how many distinct months have been exported.
func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reports)
}
