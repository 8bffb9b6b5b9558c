// Package sheets defines the outbound port for exporting monthly
// reports to a spreadsheet backend.
package sheets

import (
	"context"

	"tally/internal/core"
	"tally/internal/settle"
)

// ReportWriter exports a monthly report. The users slice resolves the
// user ids in the report to display names.
type ReportWriter interface {
	WriteMonthlyReport(ctx context.Context, report *settle.MonthlyReport, users []core.User) (ref string, err error)
}
