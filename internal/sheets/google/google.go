// Package google exports monthly reports to a Google Sheets
// spreadsheet using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"tally/internal/core"
	"tally/internal/settle"
	ports "tally/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ ports.ReportWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	inlineJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	credsFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inlineJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case inlineJSON != "":
		credentialsJSON = []byte(inlineJSON)
	case credsFile != "":
		credentialsJSON, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteMonthlyReport writes the report to a per-month tab named
// "YYYY-MM Report", replacing whatever the tab held before.
func (c *Client) WriteMonthlyReport(ctx context.Context, report *settle.MonthlyReport, users []core.User) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rows := buildReportRows(report, users)
	sheetName := reportSheetName(report.Year, report.Month)
	rng := fmt.Sprintf("%s!A1:F%d", sheetName, len(rows))

	clearRange := fmt.Sprintf("%s!A:F", sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Exported monthly report",
		"spreadsheet_id", c.spreadsheetID,
		"sheet", sheetName,
		"rows", len(rows))

	return rng, nil
}

func reportSheetName(year, month int) string {
	return fmt.Sprintf("%04d-%02d Report", year, month)
}

// buildReportRows lays the report out as spreadsheet rows: per-user
// summary, household totals, then the category breakdown.
func buildReportRows(report *settle.MonthlyReport, users []core.User) [][]any {
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	rows := [][]any{
		{"User", "Income", "Expenses", "Shared share", "Total expenses", "Savings"},
	}

	ids := make([]int64, 0, len(report.PerUser))
	for id := range report.PerUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		um := report.PerUser[id]
		name := names[id]
		if name == "" {
			name = fmt.Sprintf("user %d", id)
		}
		rows = append(rows, []any{name, um.Income, um.Expenses, um.SharedShare, um.TotalExpenses, um.Savings})
	}

	rows = append(rows,
		[]any{},
		[]any{"Household", report.Household.Income, report.Household.Expenses, "", "", report.Household.Savings},
		[]any{},
		[]any{"Category", "Amount"},
	)

	cats := make([]string, 0, len(report.ByCategory))
	for c := range report.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		rows = append(rows, []any{c, report.ByCategory[c]})
	}

	return rows
}
