package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"custfin/internal/amqp"
	"custfin/internal/core"
	"custfin/internal/services"
	"custfin/internal/sheets"
	sheetsmem "custfin/internal/sheets/memory"
	storemem "custfin/internal/store/memory"
)

type fakeApplier struct {
	calls int
	err   error
}

func (f *fakeApplier) ApplyUnappliedRevenue(context.Context, *amqp.FinanceEvent) error {
	f.calls++
	return f.err
}

type failingJournal struct{}

func (failingJournal) AppendJournal(context.Context, sheets.JournalEntry) (string, error) {
	return "", errors.New("quota exceeded")
}

func newCustomers() *storemem.Store {
	return storemem.New(storemem.Seed{
		Customers: []core.Customer{{ID: "c1", Name: "Nguyễn Văn A"}},
	})
}

func TestHandleEventJournalsRecorded(t *testing.T) {
	journal := sheetsmem.New()
	w := NewEventWorker(newCustomers(), journal, &fakeApplier{})

	e := amqp.NewFinanceEvent(amqp.EventTransactionRecorded, "c1")
	e.TransactionID = "t1"
	e.Kind = "revenue"
	e.Amount = 500_000
	e.Reason = "Thu tiền: đợt 2"
	e.Date = "2024-06-01"

	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	entries := journal.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Event != "transaction.recorded" || got.CustomerName != "Nguyễn Văn A" || got.Kind != core.KindRevenue {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.Amount.Dong != 500_000 || got.TransactionID != "t1" || !got.At.Equal(e.Timestamp) {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestHandleEventUnknownCustomerUsesID(t *testing.T) {
	journal := sheetsmem.New()
	w := NewEventWorker(newCustomers(), journal, nil)

	e := amqp.NewFinanceEvent(amqp.EventCustomerCompleted, "ghost")
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if got := journal.Entries()[0].CustomerName; got != "ghost" {
		t.Fatalf("customer name = %q, want id fallback", got)
	}
}

func TestHandleEventDeletedHasNoCustomer(t *testing.T) {
	journal := sheetsmem.New()
	w := NewEventWorker(newCustomers(), journal, nil)

	e := amqp.NewFinanceEvent(amqp.EventTransactionDeleted, "")
	e.TransactionID = "t1"
	e.Timestamp = time.Time{}
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	got := journal.Entries()[0]
	if got.CustomerName != "" || got.At.IsZero() {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestHandleEventUnapplied(t *testing.T) {
	tests := []struct {
		name        string
		applier     *fakeApplier
		wantErr     bool
		wantEntries int
	}{
		{"applied then journaled", &fakeApplier{}, false, 1},
		{"apply failure requeues", &fakeApplier{err: errors.New("db locked")}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := sheetsmem.New()
			w := NewEventWorker(newCustomers(), journal, tt.applier)

			e := amqp.NewFinanceEvent(amqp.EventRevenueUnapplied, "c1")
			e.TransactionID = "t1"
			e.Amount = 100
			err := w.HandleEvent(context.Background(), e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.applier.calls != 1 {
				t.Fatalf("applier calls = %d", tt.applier.calls)
			}
			if n := len(journal.Entries()); n != tt.wantEntries {
				t.Fatalf("entries = %d, want %d", n, tt.wantEntries)
			}
		})
	}
}

func TestHandleEventWithoutApplier(t *testing.T) {
	w := NewEventWorker(newCustomers(), sheetsmem.New(), nil)
	e := amqp.NewFinanceEvent(amqp.EventRevenueUnapplied, "c1")
	e.Amount = 100
	if err := w.HandleEvent(context.Background(), e); err == nil {
		t.Fatal("expected error without applier")
	}
}

func TestHandleEventJournalFailure(t *testing.T) {
	w := NewEventWorker(newCustomers(), failingJournal{}, nil)
	e := amqp.NewFinanceEvent(amqp.EventCustomerCompleted, "c1")
	if err := w.HandleEvent(context.Background(), e); err == nil {
		t.Fatal("expected journal error")
	}
}

func TestHandleEventWithoutJournal(t *testing.T) {
	w := NewEventWorker(newCustomers(), nil, nil)
	e := amqp.NewFinanceEvent(amqp.EventCustomerCompleted, "c1")
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
}

func TestHandleEventIgnoresUnknownType(t *testing.T) {
	journal := sheetsmem.New()
	w := NewEventWorker(newCustomers(), journal, nil)
	e := &amqp.FinanceEvent{ID: "x", Type: "something.else"}
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if n := len(journal.Entries()); n != 0 {
		t.Fatalf("unknown event journaled")
	}
}

func TestHandleEventUnappliedJournalFailureDoesNotRequeue(t *testing.T) {
	ctx := context.Background()
	st := storemem.New(storemem.Seed{
		Customers: []core.Customer{{ID: "c1", Name: "Nguyễn Văn A", Deal: core.DealDetails{ActualRevenue: 1_000_000}}},
		Transactions: []core.Transaction{{
			ID: "t9", CustomerID: "c1", Kind: core.KindRevenue, Amount: core.Money{Dong: 500_000},
			Reason: "Thu tiền: đợt 2", Status: core.StatusApproved, Date: core.NewDate(2024, 6, 1),
			RevenuePending: true,
		}},
	})
	w := NewEventWorker(st, failingJournal{}, services.NewFinanceService(st))

	e := amqp.NewFinanceEvent(amqp.EventRevenueUnapplied, "c1")
	e.TransactionID = "t9"
	e.Amount = 500_000
	// A redelivery must not count the amount twice.
	for i := 0; i < 2; i++ {
		if err := w.HandleEvent(ctx, e); err != nil {
			t.Fatalf("HandleEvent() #%d error = %v, want nil so the message is acked", i+1, err)
		}
	}

	c, _ := st.GetCustomer(ctx, "c1")
	if c.Deal.ActualRevenue != 1_500_000 {
		t.Fatalf("actual revenue = %d, want 1500000", c.Deal.ActualRevenue)
	}
}
