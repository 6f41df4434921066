package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"custfin/internal/amqp"
	"custfin/internal/core"
	"custfin/internal/sheets"
	"custfin/internal/store"
)

// RevenueApplier applies a revenue.unapplied compensation.
// *services.FinanceService implements it.
type RevenueApplier interface {
	ApplyUnappliedRevenue(ctx context.Context, e *amqp.FinanceEvent) error
}

// EventWorker handles finance events consumed from AMQP: every event is
// written to the finance journal, and revenue.unapplied events are
// compensated first. Journaling a compensation is best effort.
type EventWorker struct {
	customers store.CustomerReader
	journal   sheets.JournalWriter
	applier   RevenueApplier
}

func NewEventWorker(customers store.CustomerReader, journal sheets.JournalWriter, applier RevenueApplier) *EventWorker {
	return &EventWorker{
		customers: customers,
		journal:   journal,
		applier:   applier,
	}
}

// HandleEvent processes one event. A returned error makes the consumer
// requeue the message.
func (w *EventWorker) HandleEvent(ctx context.Context, e *amqp.FinanceEvent) error {
	slog.InfoContext(ctx, "Processing finance event",
		"id", e.ID,
		"type", e.Type,
		"customer_id", e.CustomerID,
		"transaction_id", e.TransactionID)

	switch e.Type {
	case amqp.EventRevenueUnapplied:
		if w.applier == nil {
			return fmt.Errorf("no revenue applier configured for %s", e.Type)
		}
		if err := w.applier.ApplyUnappliedRevenue(ctx, e); err != nil {
			return fmt.Errorf("apply unapplied revenue: %w", err)
		}
		// The compensation is committed: a requeue now would only replay it.
		if err := w.writeJournal(ctx, e); err != nil {
			slog.WarnContext(ctx, "Compensation applied but not journaled",
				"id", e.ID,
				"customer_id", e.CustomerID,
				"transaction_id", e.TransactionID,
				"error", err)
		}
		return nil
	case amqp.EventTransactionRecorded, amqp.EventTransactionDeleted, amqp.EventCustomerCompleted:
	default:
		slog.WarnContext(ctx, "Ignoring unknown finance event", "id", e.ID, "type", e.Type)
		return nil
	}

	return w.writeJournal(ctx, e)
}

func (w *EventWorker) writeJournal(ctx context.Context, e *amqp.FinanceEvent) error {
	if w.journal == nil {
		slog.WarnContext(ctx, "No journal configured, skipping journal entry", "id", e.ID)
		return nil
	}

	entry := sheets.JournalEntry{
		At:            e.Timestamp,
		Event:         string(e.Type),
		CustomerID:    e.CustomerID,
		CustomerName:  w.customerName(ctx, e.CustomerID),
		TransactionID: e.TransactionID,
		Kind:          core.TransactionKind(e.Kind),
		Amount:        core.Money{Dong: e.Amount},
		Reason:        e.Reason,
		Date:          e.Date,
		ActorID:       e.ActorID,
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	ref, err := w.journal.AppendJournal(ctx, entry)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}

	slog.InfoContext(ctx, "Finance event journaled",
		"id", e.ID,
		"type", e.Type,
		"row_ref", ref,
		"amount", entry.Amount.Display())
	return nil
}

// customerName resolves the display name for the journal. The id is used when
// the customer cannot be read.
func (w *EventWorker) customerName(ctx context.Context, id string) string {
	if id == "" || w.customers == nil {
		return ""
	}
	c, err := w.customers.GetCustomer(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "Could not resolve customer name for journal", "customer_id", id, "error", err)
		return id
	}
	return c.Name
}
