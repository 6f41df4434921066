package finance

import (
	"testing"

	"custfin/internal/core"
)

func tx(id, customer string, kind core.TransactionKind, amount int64) core.Transaction {
	return core.Transaction{
		ID:         id,
		CustomerID: customer,
		Kind:       kind,
		Amount:     core.Money{Dong: amount},
		Reason:     "r",
		Status:     core.StatusApproved,
		Date:       core.NewDate(2024, 5, 1),
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		txs  []core.Transaction
		want Stats
	}{
		{"empty", nil, Stats{}},
		{
			"revenue and expense",
			[]core.Transaction{tx("1", "c1", core.KindRevenue, 1000), tx("2", "c1", core.KindExpense, 300)},
			Stats{Income: core.Money{Dong: 1000}, Expense: core.Money{Dong: 300}, Balance: core.Money{Dong: 700}},
		},
		{
			"deposit counts as income",
			[]core.Transaction{tx("1", "c1", core.KindDeposit, 200), tx("2", "c1", core.KindRevenue, 100)},
			Stats{Income: core.Money{Dong: 300}, Balance: core.Money{Dong: 300}},
		},
		{
			"negative balance",
			[]core.Transaction{tx("1", "c1", core.KindRevenue, 100), tx("2", "", core.KindExpense, 400)},
			Stats{Income: core.Money{Dong: 100}, Expense: core.Money{Dong: 400}, Balance: core.Money{Dong: -300}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.txs)
			if got != tt.want {
				t.Fatalf("ComputeStats() = %+v, want %+v", got, tt.want)
			}
			if got.Balance != got.Income.Sub(got.Expense) {
				t.Fatalf("balance %d != income %d - expense %d", got.Balance.Dong, got.Income.Dong, got.Expense.Dong)
			}
		})
	}
}

func TestComputeStatsSkipsUnapproved(t *testing.T) {
	pending := tx("1", "c1", core.KindRevenue, 1000)
	pending.Status = core.StatusPending
	rejected := tx("2", "c1", core.KindExpense, 500)
	rejected.Status = core.StatusRejected
	legacy := tx("3", "c1", core.KindRevenue, 50)
	legacy.Status = ""

	got := ComputeStats([]core.Transaction{pending, rejected, legacy})
	if got.Income.Dong != 50 || got.Expense.Dong != 0 {
		t.Fatalf("unexpected stats %+v", got)
	}

	byCustomer := ComputeStatsByCustomer([]core.Transaction{pending, rejected, legacy})
	if byCustomer["c1"] != got {
		t.Fatalf("grouped stats %+v differ from %+v", byCustomer["c1"], got)
	}
}

func TestComputeStatsByCustomer(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "c1", core.KindRevenue, 1000),
		tx("2", "c2", core.KindRevenue, 700),
		tx("3", "c1", core.KindExpense, 200),
		tx("4", "", core.KindRevenue, 9999),
		tx("5", "  ", core.KindExpense, 9999),
		tx("6", "c2", core.KindDeposit, 300),
	}

	got := ComputeStatsByCustomer(txs)
	if len(got) != 2 {
		t.Fatalf("expected 2 customers, got %d: %+v", len(got), got)
	}

	// Grouping must equal computing each customer's subset alone.
	for _, id := range []string{"c1", "c2"} {
		var subset []core.Transaction
		for _, t := range txs {
			if t.CustomerID == id {
				subset = append(subset, t)
			}
		}
		if want := ComputeStats(subset); got[id] != want {
			t.Fatalf("customer %s: got %+v, want %+v", id, got[id], want)
		}
	}

	var sum core.Money
	for _, s := range got {
		sum = sum.Add(s.Income)
	}
	var associated []core.Transaction
	for _, t := range txs {
		if t.HasCustomer() {
			associated = append(associated, t)
		}
	}
	if want := ComputeStats(associated).Income; sum != want {
		t.Fatalf("sum of per-customer income = %d, want %d", sum.Dong, want.Dong)
	}

	if s := StatsFor(got, "missing"); s != (Stats{}) {
		t.Fatalf("expected zero stats for unknown customer, got %+v", s)
	}
}

func TestComputeStatsByCustomerOrderIndependent(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "c1", core.KindRevenue, 10),
		tx("2", "c1", core.KindExpense, 3),
		tx("3", "c2", core.KindRevenue, 7),
	}
	reversed := []core.Transaction{txs[2], txs[1], txs[0]}

	a, b := ComputeStatsByCustomer(txs), ComputeStatsByCustomer(reversed)
	for id := range a {
		if a[id] != b[id] {
			t.Fatalf("customer %s: %+v vs %+v", id, a[id], b[id])
		}
	}
}

func TestSumStats(t *testing.T) {
	got := SumStats(
		Stats{Income: core.Money{Dong: 100}, Expense: core.Money{Dong: 40}, Balance: core.Money{Dong: 60}},
		Stats{Income: core.Money{Dong: 5}, Expense: core.Money{Dong: 50}, Balance: core.Money{Dong: -45}},
	)
	want := Stats{Income: core.Money{Dong: 105}, Expense: core.Money{Dong: 90}, Balance: core.Money{Dong: 15}}
	if got != want {
		t.Fatalf("SumStats() = %+v, want %+v", got, want)
	}
}
