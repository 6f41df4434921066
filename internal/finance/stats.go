// Package finance derives customer finance statistics and filtered views from
// in-memory rosters. Everything here is pure: no I/O, no shared state, and no
// input is modified.
package finance

import "custfin/internal/core"

// Stats is the income/expense summary of a set of transactions.
// Balance is always Income - Expense and may be negative.
type Stats struct {
	Income  core.Money
	Expense core.Money
	Balance core.Money
}

func newStats(income, expense core.Money) Stats {
	return Stats{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

// add folds one transaction into the totals; returns the unchanged totals for
// transactions that do not count.
func add(income, expense core.Money, t core.Transaction) (core.Money, core.Money) {
	if !t.Counts() {
		return income, expense
	}
	switch t.Kind.Class() {
	case core.ClassCredit:
		income = income.Add(t.Amount)
	case core.ClassDebit:
		expense = expense.Add(t.Amount)
	}
	return income, expense
}

// ComputeStats sums income (revenue and deposit) and expense over txs.
func ComputeStats(txs []core.Transaction) Stats {
	var income, expense core.Money
	for _, t := range txs {
		income, expense = add(income, expense, t)
	}
	return newStats(income, expense)
}

// ComputeStatsByCustomer groups txs by customer and computes Stats for each group.
// Transactions without a customer are ignored; customers without transactions
// are absent from the result, so look-ups should go through StatsFor.
func ComputeStatsByCustomer(txs []core.Transaction) map[string]Stats {
	type totals struct{ income, expense core.Money }
	acc := make(map[string]totals)
	for _, t := range txs {
		if !t.HasCustomer() {
			continue
		}
		cur := acc[t.CustomerID]
		cur.income, cur.expense = add(cur.income, cur.expense, t)
		acc[t.CustomerID] = cur
	}

	out := make(map[string]Stats, len(acc))
	for id, tt := range acc {
		out[id] = newStats(tt.income, tt.expense)
	}
	return out
}

// StatsFor returns the stats of a customer, zero when the customer has none.
func StatsFor(byCustomer map[string]Stats, customerID string) Stats {
	if s, ok := byCustomer[customerID]; ok {
		return s
	}
	return Stats{}
}

// SumStats adds up already computed stats. Balance is recomputed from the sums.
func SumStats(stats ...Stats) Stats {
	var income, expense core.Money
	for _, s := range stats {
		income = income.Add(s.Income)
		expense = expense.Add(s.Expense)
	}
	return newStats(income, expense)
}
