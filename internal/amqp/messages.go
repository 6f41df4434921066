package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a finance event.
type EventType string

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionDeleted  EventType = "transaction.deleted"
	EventCustomerCompleted   EventType = "customer.completed"
	// EventRevenueUnapplied asks the worker to add Amount to the customer's
	// actual revenue after the direct update failed.
	EventRevenueUnapplied EventType = "revenue.unapplied"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTransactionRecorded, EventTransactionDeleted, EventCustomerCompleted, EventRevenueUnapplied:
		return true
	}
	return false
}

// FinanceEvent is published after a finance mutation succeeds. The worker
// uses it to keep the journal sheet and the actual revenue figures in step.
type FinanceEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CustomerID    string    `json:"customer_id"`
	Kind          string    `json:"kind,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Date          string    `json:"date,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewFinanceEvent creates an event of the given type with a fresh id.
func NewFinanceEvent(t EventType, customerID string) *FinanceEvent {
	return &FinanceEvent{
		ID:         uuid.NewString(),
		Type:       t,
		CustomerID: customerID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *FinanceEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FinanceEventFromJSON decodes an event and rejects unknown types.
func FinanceEventFromJSON(data []byte) (*FinanceEvent, error) {
	var e FinanceEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate checks that the event carries the fields its type needs.
func (e *FinanceEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	needsTx := e.Type == EventTransactionRecorded || e.Type == EventTransactionDeleted ||
		e.Type == EventRevenueUnapplied
	if needsTx && e.TransactionID == "" {
		return fmt.Errorf("%s event %s has no transaction", e.Type, e.ID)
	}
	if e.Type != EventTransactionDeleted && e.CustomerID == "" {
		return fmt.Errorf("%s event %s has no customer", e.Type, e.ID)
	}
	if e.Type == EventRevenueUnapplied && e.Amount <= 0 {
		return fmt.Errorf("%s event %s has no amount", e.Type, e.ID)
	}
	return nil
}
