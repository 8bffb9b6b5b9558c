// Package storage implements the durable ledger store on an embedded
// SQLite database: users, personal transactions, shared expenses and
// their splits, with cascading referential integrity.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

type LedgerRepository struct {
	db *sql.DB
}

// PeriodFilter narrows a listing to a calendar period. Zero values mean
// no filtering; Month requires Year.
type PeriodFilter struct {
	Year  int
	Month int
}

// TransactionFilter narrows a personal-transaction listing.
type TransactionFilter struct {
	UserID int64
	Period PeriodFilter
}

func NewLedgerRepository(dbPath string) (*LedgerRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single connection: foreign_keys is a per-connection pragma and the
	// ledger is a single-process, single-writer store anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &LedgerRepository{db: db}, nil
}

func (r *LedgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// AddUser inserts a new user and returns its id.
func (r *LedgerRepository) AddUser(ctx context.Context, name string) (int64, error) {
	u := core.User{Name: strings.TrimSpace(name)}
	if err := u.Validate(); err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, "INSERT INTO users(name) VALUES (?)", u.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", core.ErrDuplicateName, u.Name)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}

	slog.InfoContext(ctx, "User added", "id", id, "name", u.Name)
	return id, nil
}

// ListUsers returns all users ordered by name.
func (r *LedgerRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser returns one user by id.
func (r *LedgerRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM users WHERE id = ?", id).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%w: user %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// DeleteUser removes a user. Foreign keys cascade the deletion to the
// user's personal transactions, the shared expenses they paid (with
// those expenses' splits), and any splits naming them as participant.
func (r *LedgerRepository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", core.ErrNotFound, id)
	}

	slog.InfoContext(ctx, "User deleted", "id", id)
	return nil
}

// AddTransaction inserts a personal income or expense entry.
func (r *LedgerRepository) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	if _, err := r.GetUser(ctx, tx.UserID); err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO personal_transactions(user_id, kind, amount, category, note, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.UserID, string(tx.Kind), tx.Amount, tx.Category, tx.Note, tx.Date.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"id", id,
		"user_id", tx.UserID,
		"kind", string(tx.Kind),
		"amount", tx.Amount,
		"category", tx.Category)
	return id, nil
}

// ListTransactions returns personal transactions newest first, filtered
// by the optional user and period.
func (r *LedgerRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error) {
	query := "SELECT id, user_id, kind, amount, category, note, date FROM personal_transactions"
	var conds []string
	var args []any

	if filter.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	periodConds, periodArgs, err := periodCondition(filter.Period)
	if err != nil {
		return nil, err
	}
	conds = append(conds, periodConds...)
	args = append(args, periodArgs...)

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// GetTransaction returns one personal transaction by id.
func (r *LedgerRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, kind, amount, category, note, date FROM personal_transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// DeleteTransaction removes one personal transaction.
func (r *LedgerRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM personal_transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	return nil
}

// AddSharedExpense persists a shared expense and all its splits in one
// transaction: either every row lands or none do. Unknown payer or
// participant ids are validation failures, matching the write contract.
func (r *LedgerRepository) AddSharedExpense(ctx context.Context, e core.SharedExpense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if err := r.checkParticipants(ctx, e); err != nil {
		return 0, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`INSERT INTO shared_expenses(title, total_amount, date, payer_id, category, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Title, e.TotalAmount, e.Date.String(), e.PayerID, e.Category, e.Note,
	)
	if err != nil {
		return 0, fmt.Errorf("insert shared expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("shared expense id: %w", err)
	}

	for _, s := range e.Splits {
		_, err := dbTx.ExecContext(ctx,
			`INSERT INTO shared_expense_splits(shared_expense_id, user_id, kind, value)
			 VALUES (?, ?, ?, ?)`,
			id, s.UserID, string(s.Kind), s.Value,
		)
		if err != nil {
			return 0, fmt.Errorf("insert split: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit shared expense: %w", err)
	}

	slog.InfoContext(ctx, "Shared expense added",
		"id", id,
		"title", e.Title,
		"total_amount", e.TotalAmount,
		"payer_id", e.PayerID,
		"splits", len(e.Splits))
	return id, nil
}

// ListSharedExpenses returns shared expenses newest first with their
// splits attached, optionally restricted to a period.
func (r *LedgerRepository) ListSharedExpenses(ctx context.Context, filter PeriodFilter) ([]core.SharedExpense, error) {
	query := "SELECT id, title, total_amount, date, payer_id, category, note FROM shared_expenses"
	conds, args, err := periodCondition(filter)
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shared expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.SharedExpense
	for rows.Next() {
		e, err := scanSharedExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared expenses: %w", err)
	}

	for i := range expenses {
		splits, err := r.listSplits(ctx, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Splits = splits
	}
	return expenses, nil
}

// GetSharedExpense returns one shared expense with splits attached.
func (r *LedgerRepository) GetSharedExpense(ctx context.Context, id int64) (core.SharedExpense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, title, total_amount, date, payer_id, category, note FROM shared_expenses WHERE id = ?", id)
	e, err := scanSharedExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SharedExpense{}, fmt.Errorf("%w: shared expense %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.SharedExpense{}, err
	}

	splits, err := r.listSplits(ctx, e.ID)
	if err != nil {
		return core.SharedExpense{}, err
	}
	e.Splits = splits
	return e, nil
}

// DeleteSharedExpense removes the expense; its splits cascade.
func (r *LedgerRepository) DeleteSharedExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM shared_expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete shared expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete shared expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: shared expense %d", core.ErrNotFound, id)
	}

	slog.InfoContext(ctx, "Shared expense deleted", "id", id)
	return nil
}

func (r *LedgerRepository) checkParticipants(ctx context.Context, e core.SharedExpense) error {
	ids := map[int64]struct{}{e.PayerID: {}}
	for _, s := range e.Splits {
		ids[s.UserID] = struct{}{}
	}
	for id := range ids {
		var exists int
		err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: split references unknown user %d", core.ErrValidation, id)
		}
		if err != nil {
			return fmt.Errorf("check participant %d: %w", id, err)
		}
	}
	return nil
}

func (r *LedgerRepository) listSplits(ctx context.Context, expenseID int64) ([]core.Split, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, shared_expense_id, user_id, kind, value FROM shared_expense_splits WHERE shared_expense_id = ? ORDER BY id",
		expenseID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var s core.Split
		var kind string
		if err := rows.Scan(&s.ID, &s.ExpenseID, &s.UserID, &kind, &s.Value); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		s.Kind = core.SplitKind(kind)
		splits = append(splits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate splits: %w", err)
	}
	return splits, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var kind, date string
	if err := row.Scan(&tx.ID, &tx.UserID, &kind, &tx.Amount, &tx.Category, &tx.Note, &date); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Kind = core.TransactionKind(kind)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: stored date %q", core.ErrInvariant, date)
	}
	tx.Date = d
	return tx, nil
}

func scanSharedExpense(row rowScanner) (core.SharedExpense, error) {
	var e core.SharedExpense
	var date string
	err := row.Scan(&e.ID, &e.Title, &e.TotalAmount, &date, &e.PayerID, &e.Category, &e.Note)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SharedExpense{}, err
		}
		return core.SharedExpense{}, fmt.Errorf("scan shared expense: %w", err)
	}
	d, perr := core.ParseDate(date)
	if perr != nil {
		return core.SharedExpense{}, fmt.Errorf("%w: stored date %q", core.ErrInvariant, date)
	}
	e.Date = d
	return e, nil
}

// periodCondition builds the WHERE fragment for an optional year/month
// filter over ISO date strings, using inclusive month bounds.
func periodCondition(p PeriodFilter) ([]string, []any, error) {
	switch {
	case p.Year == 0 && p.Month == 0:
		return nil, nil, nil
	case p.Year == 0:
		return nil, nil, fmt.Errorf("%w: month filter requires a year", core.ErrValidation)
	case p.Month == 0:
		start := core.NewDate(p.Year, 1, 1)
		end := core.NewDate(p.Year, 12, 31)
		return []string{"date BETWEEN ? AND ?"}, []any{start.String(), end.String()}, nil
	case p.Month < 1 || p.Month > 12:
		return nil, nil, fmt.Errorf("%w: month must be 1-12, got %d", core.ErrValidation, p.Month)
	default:
		start, end := monthBounds(p.Year, p.Month)
		return []string{"date BETWEEN ? AND ?"}, []any{start, end}, nil
	}
}

// monthBounds returns the first and last day (YYYY-MM-DD) of a month.
func monthBounds(year, month int) (string, string) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
