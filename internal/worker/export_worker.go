// Package worker re-exports monthly reports to the spreadsheet backend
// whenever ledger events arrive, with a periodic pass as backup in case
// messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/sheets"
	"tally/internal/storage"
)

type ExportWorker struct {
	store   *storage.LedgerRepository
	reports *services.ReportService
	writer  sheets.ReportWriter
	logger  *slog.Logger
}

func NewExportWorker(store *storage.LedgerRepository, reports *services.ReportService, writer sheets.ReportWriter) *ExportWorker {
	return &ExportWorker{
		store:   store,
		reports: reports,
		writer:  writer,
		logger:  log.With(log.ComponentWorker),
	}
}

// HandleEvent re-exports the month a ledger event touched. User events
// carry no period; they invalidate everything and re-export the current
// month.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldEvent, ev.Type,
		"entity_id", ev.EntityID,
		log.FieldMessageID, ev.MessageID)

	year, month := ev.Year, ev.Month
	if year == 0 || month == 0 {
		now := time.Now()
		year, month = now.Year(), int(now.Month())
		w.reports.InvalidateAll()
	} else {
		w.reports.Invalidate(year, month)
	}

	return w.ExportMonth(ctx, year, month)
}

// ExportMonth recomputes one month's report and writes it out.
func (w *ExportWorker) ExportMonth(ctx context.Context, year, month int) error {
	report, err := w.reports.MonthlyReport(ctx, year, month)
	if err != nil {
		return fmt.Errorf("compute monthly report: %w", err)
	}

	users, err := w.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	ref, err := w.writer.WriteMonthlyReport(ctx, report, users)
	if err != nil {
		return fmt.Errorf("write monthly report: %w", err)
	}

	w.logger.InfoContext(ctx, "Exported monthly report",
		log.FieldYear, year,
		log.FieldMonth, month,
		"ref", ref)
	return nil
}

// RunPeriodic exports the current month every interval until ctx is
// cancelled. Export failures are logged and retried on the next tick.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			w.reports.Invalidate(now.Year(), int(now.Month()))
			if err := w.ExportMonth(ctx, now.Year(), int(now.Month())); err != nil {
				w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}
