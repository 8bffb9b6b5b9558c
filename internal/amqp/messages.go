package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Ledger event types published after successful writes.
const (
	EventUserAdded            = "user_added"
	EventUserDeleted          = "user_deleted"
	EventTransactionAdded     = "transaction_added"
	EventTransactionDeleted   = "transaction_deleted"
	EventSharedExpenseAdded   = "shared_expense_added"
	EventSharedExpenseDeleted = "shared_expense_deleted"
)

// LedgerEvent is a lightweight notification that a ledger write
// happened. Consumers re-read whatever they need from the store; the
// year/month locate the period whose reports are now stale.
type LedgerEvent struct {
	MessageID string    `json:"message_id"`
	Type      string    `json:"type"`
	EntityID  int64     `json:"entity_id"`
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh message id.
func NewLedgerEvent(eventType string, entityID int64, year, month int) *LedgerEvent {
	return &LedgerEvent{
		MessageID: uuid.New().String(),
		Type:      eventType,
		EntityID:  entityID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
