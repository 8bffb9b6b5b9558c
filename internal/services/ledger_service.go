// Package services orchestrates ledger writes across the SQLite store,
// the report cache, and the AMQP event stream.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerService wraps the store with event publishing and report cache
// invalidation. The store is the source of truth: a write that lands
// there succeeds even if the event cannot be published.
type LedgerService struct {
	store      *storage.LedgerRepository
	amqpClient *amqp.Client
	reports    *ReportService
}

// NewLedgerService creates the service. amqpClient and reports may be
// nil; the corresponding side effects are then skipped.
func NewLedgerService(store *storage.LedgerRepository, amqpClient *amqp.Client, reports *ReportService) *LedgerService {
	return &LedgerService{
		store:      store,
		amqpClient: amqpClient,
		reports:    reports,
	}
}

func (s *LedgerService) AddUser(ctx context.Context, name string) (int64, error) {
	id, err := s.store.AddUser(ctx, name)
	if err != nil {
		return 0, err
	}
	s.publishEvent(ctx, amqp.EventUserAdded, id, 0, 0)
	return id, nil
}

func (s *LedgerService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}

// DeleteUser removes the user and everything referencing them. Any
// cached month may be stale afterwards, so the whole report cache is
// dropped.
func (s *LedgerService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	if s.reports != nil {
		s.reports.InvalidateAll()
	}
	s.publishEvent(ctx, amqp.EventUserDeleted, id, 0, 0)
	return nil
}

func (s *LedgerService) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	id, err := s.store.AddTransaction(ctx, tx)
	if err != nil {
		return 0, err
	}
	year, month := tx.Date.Year(), int(tx.Date.Month())
	if s.reports != nil {
		s.reports.Invalidate(year, month)
	}
	s.publishEvent(ctx, amqp.EventTransactionAdded, id, year, month)
	return id, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	// Fetch first so the event and invalidation carry the affected month.
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	year, month := tx.Date.Year(), int(tx.Date.Month())
	if s.reports != nil {
		s.reports.Invalidate(year, month)
	}
	s.publishEvent(ctx, amqp.EventTransactionDeleted, id, year, month)
	return nil
}

func (s *LedgerService) AddSharedExpense(ctx context.Context, e core.SharedExpense) (int64, error) {
	id, err := s.store.AddSharedExpense(ctx, e)
	if err != nil {
		return 0, err
	}
	year, month := e.Date.Year(), int(e.Date.Month())
	if s.reports != nil {
		s.reports.Invalidate(year, month)
	}
	s.publishEvent(ctx, amqp.EventSharedExpenseAdded, id, year, month)
	return id, nil
}

func (s *LedgerService) ListSharedExpenses(ctx context.Context, filter storage.PeriodFilter) ([]core.SharedExpense, error) {
	return s.store.ListSharedExpenses(ctx, filter)
}

func (s *LedgerService) GetSharedExpense(ctx context.Context, id int64) (core.SharedExpense, error) {
	return s.store.GetSharedExpense(ctx, id)
}

func (s *LedgerService) DeleteSharedExpense(ctx context.Context, id int64) error {
	e, err := s.store.GetSharedExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSharedExpense(ctx, id); err != nil {
		return err
	}
	year, month := e.Date.Year(), int(e.Date.Month())
	if s.reports != nil {
		s.reports.Invalidate(year, month)
	}
	s.publishEvent(ctx, amqp.EventSharedExpenseDeleted, id, year, month)
	return nil
}

func (s *LedgerService) publishEvent(ctx context.Context, eventType string, entityID int64, year, month int) {
	if s.amqpClient == nil {
		return
	}
	ev := amqp.NewLedgerEvent(eventType, entityID, year, month)
	if err := s.amqpClient.PublishEvent(ctx, ev); err != nil {
		// The write already succeeded; log and move on.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event", eventType,
			"entity_id", entityID,
			"error", err)
	}
}

// Close closes the store and the AMQP connection.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
