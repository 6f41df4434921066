package finance

import (
	"sort"

	"custfin/internal/core"
)

// Detail is the finance view of a single customer.
type Detail struct {
	Customer        core.Customer
	Transactions    []core.Transaction
	Stats           Stats
	CreatorNames    map[string]string
	DistributorName string
	Reminders       []core.Reminder
}

// NewDetail orders txs by transaction date, newest first, and computes the
// customer's stats. Transactions of other customers are dropped.
func NewDetail(c core.Customer, txs []core.Transaction, creatorNames map[string]string) Detail {
	own := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.CustomerID == c.ID {
			own = append(own, t)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		if !own[i].Date.Equal(own[j].Date.Time) {
			return own[i].Date.After(own[j].Date.Time)
		}
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})

	names := make(map[string]string, len(creatorNames))
	for k, v := range creatorNames {
		names[k] = v
	}

	return Detail{
		Customer:     c,
		Transactions: own,
		Stats:        ComputeStats(own),
		CreatorNames: names,
	}
}

// CreatorName returns the display name of the transaction's creator.
func (d Detail) CreatorName(t core.Transaction) string {
	return d.CreatorNames[t.CreatedBy]
}

// WithoutTransaction returns a copy of d with one transaction removed and the
// stats recomputed.
func (d Detail) WithoutTransaction(id string) Detail {
	d.Transactions = withoutTransaction(d.Transactions, id)
	d.Stats = ComputeStats(d.Transactions)
	return d
}
