package google

import (
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
	ports "custfin/internal/sheets"
)

var overviewHeader = []any{
	"Khách hàng", "Điện thoại", "Nhu cầu", "Trạng thái", "Doanh thu thực tế", "Thu", "Chi", "Số dư",
}

// journalRow lays out an entry as columns A:I. Amounts are written as plain
// numbers so the sheet can sum them.
func journalRow(e ports.JournalEntry, loc *time.Location) []any {
	if loc == nil {
		loc = time.UTC
	}
	customer := e.CustomerName
	if customer == "" {
		customer = e.CustomerID
	}
	var amount any = ""
	if e.Amount.Dong != 0 {
		amount = e.Amount.Dong
	}
	return []any{
		e.At.In(loc).Format(time.DateTime),
		e.Event,
		e.Date,
		customer,
		string(e.Kind),
		amount,
		e.Reason,
		e.TransactionID,
		e.ActorID,
	}
}

func overviewValues(rows []finance.Row, summary finance.Stats) [][]any {
	values := make([][]any, 0, len(rows)+2)
	values = append(values, overviewHeader)
	for _, r := range rows {
		values = append(values, []any{
			r.Customer.Name,
			r.Customer.Phone,
			r.Customer.Interest,
			statusLabel(r.Customer),
			r.Customer.Deal.ActualRevenue,
			r.Stats.Income.Dong,
			r.Stats.Expense.Dong,
			r.Stats.Balance.Dong,
		})
	}
	values = append(values, []any{
		"Tổng", "", "", "", "",
		summary.Income.Dong,
		summary.Expense.Dong,
		summary.Balance.Dong,
	})
	return values
}

func statusLabel(c core.Customer) string {
	if c.IsCompleted() {
		return "Hoàn thành"
	}
	return "Đang xử lý"
}
