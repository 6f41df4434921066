// Package store declares the persistence ports of the finance module.
package store

import (
	"context"
	"errors"

	"custfin/internal/core"
)

// ErrNotFound is returned when a record addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// CustomerQuery selects customers by pipeline status.
type CustomerQuery struct {
	Status       string
	DealStatuses []string
}

// FinanceCustomers selects the won deals that are still being processed or
// are on hold: the customers the finance module follows.
func FinanceCustomers() CustomerQuery {
	return CustomerQuery{
		Status:       core.CustomerStatusWon,
		DealStatuses: []string{core.DealProcessing, core.DealSuspended},
	}
}

// Matches reports whether c is selected by q. Empty fields select everything.
func (q CustomerQuery) Matches(c core.Customer) bool {
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	if len(q.DealStatuses) == 0 {
		return true
	}
	for _, s := range q.DealStatuses {
		if c.DealStatus == s {
			return true
		}
	}
	return false
}

// Snapshot is a bulk copy of store content, used to seed a store.
type Snapshot struct {
	Customers    []core.Customer
	Transactions []core.Transaction
	Profiles     []core.Profile
	Distributors []core.Distributor
}

// Ports for the backing store.
type (
	CustomerReader interface {
		// ListCustomers returns the matching customers, most recently updated first.
		ListCustomers(ctx context.Context, q CustomerQuery) ([]core.Customer, error)
		GetCustomer(ctx context.Context, id string) (core.Customer, error)
	}

	// TransactionReader lists transactions ordered by transaction date, newest first.
	// Records with a kind that cannot be normalized are skipped.
	TransactionReader interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		ListCustomerTransactions(ctx context.Context, customerID string) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		InsertTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	CustomerWriter interface {
		SetFinanceStatus(ctx context.Context, customerID string, status core.FinanceStatus) error
		UpdateDealDetails(ctx context.Context, customerID string, deal core.DealDetails) error
	}

	ProfileReader interface {
		ListProfiles(ctx context.Context) ([]core.Profile, error)
		// ProfilesByIDs returns the profiles among ids that exist, in no particular order.
		ProfilesByIDs(ctx context.Context, ids []string) ([]core.Profile, error)
	}

	DistributorReader interface {
		ListDistributors(ctx context.Context) ([]core.Distributor, error)
	}

	ReminderWriter interface {
		InsertReminder(ctx context.Context, r core.Reminder) error
	}

	// ReminderReader lists a customer's finance reminders, newest first.
	ReminderReader interface {
		ListReminders(ctx context.Context, customerID string) ([]core.Reminder, error)
	}

	// RevenueApplier adds a pending revenue transaction's amount to its
	// customer's actual revenue and clears the pending mark in one atomic
	// write. It reports false without changing anything when the
	// transaction is no longer pending.
	RevenueApplier interface {
		ApplyPendingRevenue(ctx context.Context, transactionID string) (bool, error)
	}

	// Store is the full set of ports the finance service depends on.
	Store interface {
		CustomerReader
		CustomerWriter
		TransactionReader
		TransactionWriter
		ProfileReader
		DistributorReader
		ReminderWriter
		ReminderReader
		RevenueApplier
	}

	// RevenueRecorder is implemented by stores that can insert a revenue
	// transaction and add its amount to the customer's actual revenue in one
	// atomic write. Either both changes are applied or neither is.
	RevenueRecorder interface {
		RecordRevenue(ctx context.Context, t core.Transaction) error
	}
)
