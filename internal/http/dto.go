package http

import (
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
)

type statsDTO struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
	Balance int64 `json:"balance"`
}

type customerDTO struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Phone         string           `json:"phone,omitempty"`
	Interest      string           `json:"interest,omitempty"`
	CreatorID     string           `json:"creator_id,omitempty"`
	FinanceStatus string           `json:"finance_status"`
	Deal          core.DealDetails `json:"deal"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type rowDTO struct {
	Customer customerDTO `json:"customer"`
	Stats    statsDTO    `json:"stats"`
}

type memberDTO struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	ManagerID string `json:"manager_id,omitempty"`
}

type filtersDTO struct {
	Tab    string `json:"tab"`
	Search string `json:"search"`
	Team   string `json:"team"`
	Member string `json:"member"`
}

type overviewDTO struct {
	Filters  filtersDTO  `json:"filters"`
	Rows     []rowDTO    `json:"rows"`
	Summary  statsDTO    `json:"summary"`
	Teams    []memberDTO `json:"teams"`
	Members  []memberDTO `json:"members"`
	Selected *rowDTO     `json:"selected,omitempty"`
	LoadedAt time.Time   `json:"loaded_at"`
}

type transactionDTO struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	Kind          string    `json:"kind"`
	Class         string    `json:"class"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status,omitempty"`
	Date          string    `json:"date"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedByName string    `json:"created_by_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Pending       bool      `json:"revenue_pending,omitempty"`
}

type detailDTO struct {
	Customer        customerDTO      `json:"customer"`
	Transactions    []transactionDTO `json:"transactions"`
	Stats           statsDTO         `json:"stats"`
	DistributorName string           `json:"distributor_name,omitempty"`
	Reminders       []reminderDTO    `json:"reminders"`
}

type recordDTO struct {
	Transaction   transactionDTO `json:"transaction"`
	ActualRevenue int64          `json:"actual_revenue"`
	Warning       string         `json:"warning,omitempty"`
}

type reminderDTO struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	RemindAt   time.Time `json:"remind_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func toStatsDTO(s finance.Stats) statsDTO {
	return statsDTO{Income: s.Income.Dong, Expense: s.Expense.Dong, Balance: s.Balance.Dong}
}

func toCustomerDTO(c core.Customer) customerDTO {
	status := c.FinanceStatus
	if status == "" {
		status = core.FinanceActive
	}
	return customerDTO{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Interest:      c.Interest,
		CreatorID:     c.CreatorID,
		FinanceStatus: string(status),
		Deal:          c.Deal,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toRowDTO(r finance.Row) rowDTO {
	return rowDTO{Customer: toCustomerDTO(r.Customer), Stats: toStatsDTO(r.Stats)}
}

func toMemberDTOs(members []finance.Member) []memberDTO {
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO{ID: m.ID, FullName: m.FullName, ManagerID: m.ManagerID})
	}
	return out
}

func toOverviewDTO(v finance.View, loadedAt time.Time) overviewDTO {
	rows := make([]rowDTO, 0, len(v.Rows))
	for _, r := range v.Rows {
		rows = append(rows, toRowDTO(r))
	}
	dto := overviewDTO{
		Filters: filtersDTO{
			Tab:    string(v.Filters.Tab),
			Search: v.Filters.Search,
			Team:   v.Filters.Team,
			Member: v.Filters.Member,
		},
		Rows:     rows,
		Summary:  toStatsDTO(v.Summary),
		Teams:    toMemberDTOs(v.Teams),
		Members:  toMemberDTOs(v.Members),
		LoadedAt: loadedAt,
	}
	if v.Selected != nil {
		sel := toRowDTO(*v.Selected)
		dto.Selected = &sel
	}
	return dto
}

func toTransactionDTO(t core.Transaction, creatorName string) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		CustomerID:    t.CustomerID,
		Kind:          string(t.Kind),
		Class:         t.Kind.Class().String(),
		Amount:        t.Amount.Dong,
		Reason:        t.Reason,
		Status:        string(t.Status),
		Date:          t.Date.String(),
		CreatedBy:     t.CreatedBy,
		CreatedByName: creatorName,
		CreatedAt:     t.CreatedAt,
		Pending:       t.RevenuePending,
	}
}

func toDetailDTO(d finance.Detail) detailDTO {
	txs := make([]transactionDTO, 0, len(d.Transactions))
	for _, t := range d.Transactions {
		txs = append(txs, toTransactionDTO(t, d.CreatorName(t)))
	}
	reminders := make([]reminderDTO, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		reminders = append(reminders, toReminderDTO(r))
	}
	return detailDTO{
		Customer:        toCustomerDTO(d.Customer),
		Transactions:    txs,
		Stats:           toStatsDTO(d.Stats),
		DistributorName: d.DistributorName,
		Reminders:       reminders,
	}
}

func toReminderDTO(r core.Reminder) reminderDTO {
	return reminderDTO{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		UserID:     r.UserID,
		Type:       r.Type,
		Content:    r.Content,
		RemindAt:   r.RemindAt,
		CreatedAt:  r.CreatedAt,
	}
}
