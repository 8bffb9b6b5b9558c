package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Epsilon is the allowed slack when comparing monetary sums.
const Epsilon = 0.01

// Error categories. Specific reasons wrap one of these so callers can
// classify failures with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrDuplicateName = errors.New("duplicate user name")
	ErrNotFound      = errors.New("not found")
	ErrInvariant     = errors.New("invariant violation")
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	Percentage SplitKind = "percentage"
	Fixed      SplitKind = "fixed"
)

// DefaultCategories seeds new ledgers and drives CLI hints.
var DefaultCategories = []string{
	"grocery",
	"clothing",
	"entertainment",
	"dining",
	"rent",
	"transportation",
	"others",
}

type (
	TransactionKind string

	SplitKind string

	Date struct {
		time.Time
	}

	User struct {
		ID   int64
		Name string
	}

	// Transaction is a personal income or expense entry owned by one user.
	Transaction struct {
		ID       int64
		UserID   int64
		Kind     TransactionKind
		Amount   float64
		Category string
		Note     string
		Date     Date
	}

	// Split assigns one participant's share of a shared expense,
	// either as a percentage of the total or as a fixed amount.
	Split struct {
		ID        int64
		ExpenseID int64
		UserID    int64
		Kind      SplitKind
		Value     float64
	}

	// SharedExpense is an expense fronted by one payer and divided
	// among its split participants. The payer must appear in Splits.
	SharedExpense struct {
		ID          int64
		Title       string
		TotalAmount float64
		Date        Date
		PayerID     int64
		Category    string
		Note        string
		Splits      []Split
	}
)

const dateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrValidation, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// InMonth reports whether the date falls within the given year and month.
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && int(d.Time.Month()) == month
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	return nil
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: transaction kind must be income or expense, got %q", ErrValidation, string(k))
	}
}

func (k SplitKind) Validate() error {
	switch k {
	case Percentage, Fixed:
		return nil
	default:
		return fmt.Errorf("%w: split kind must be percentage or fixed, got %q", ErrValidation, string(k))
	}
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: user name is required", ErrValidation)
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return fmt.Errorf("%w: transaction requires a user", ErrValidation)
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	return t.Date.Validate()
}

func (s Split) Validate() error {
	if s.UserID <= 0 {
		return fmt.Errorf("%w: split requires a user", ErrValidation)
	}
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	if s.Value < 0 {
		return fmt.Errorf("%w: split value cannot be negative", ErrValidation)
	}
	return nil
}

// Validate checks field constraints and the split-coverage invariant:
// all splits share one kind, percentages sum to 100 and fixed values sum
// to the total amount, both within Epsilon, and the payer participates.
func (e SharedExpense) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if e.TotalAmount <= 0 {
		return fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.PayerID <= 0 {
		return fmt.Errorf("%w: shared expense requires a payer", ErrValidation)
	}
	if len(e.Splits) == 0 {
		return fmt.Errorf("%w: at least one split is required", ErrValidation)
	}

	payerSeen := false
	var kind SplitKind
	var sum float64
	for i, s := range e.Splits {
		if err := s.Validate(); err != nil {
			return err
		}
		if i == 0 {
			kind = s.Kind
		} else if s.Kind != kind {
			return fmt.Errorf("%w: cannot mix percentage and fixed splits in one expense", ErrValidation)
		}
		if s.UserID == e.PayerID {
			payerSeen = true
		}
		sum += s.Value
	}
	if !payerSeen {
		return fmt.Errorf("%w: payer must be included in splits", ErrValidation)
	}

	switch kind {
	case Percentage:
		if diff := sum - 100; diff > Epsilon || diff < -Epsilon {
			return fmt.Errorf("%w: percentage splits sum to %.2f, want 100", ErrValidation, sum)
		}
	case Fixed:
		if diff := sum - e.TotalAmount; diff > Epsilon || diff < -Epsilon {
			return fmt.Errorf("%w: fixed splits sum to %.2f, want %.2f", ErrValidation, sum, e.TotalAmount)
		}
	}
	return nil
}

// Shares converts the expense's splits into per-user monetary shares.
// Returns ErrInvariant on a split kind that validation should have
// rejected; the result accumulates if a user appears in several splits.
func (e SharedExpense) Shares() (map[int64]float64, error) {
	shares := make(map[int64]float64, len(e.Splits))
	for _, s := range e.Splits {
		var share float64
		switch s.Kind {
		case Percentage:
			share = e.TotalAmount * s.Value / 100
		case Fixed:
			share = s.Value
		default:
			return nil, fmt.Errorf("%w: unknown split kind %q", ErrInvariant, string(s.Kind))
		}
		shares[s.UserID] += share
	}
	return shares, nil
}
