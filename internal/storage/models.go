package storage

import "database/sql"

// Row types mirror the tables in migrations/. Timestamps are stored as UTC
// RFC 3339 text and transaction dates as YYYY-MM-DD.
type (
	Customer struct {
		ID            string
		Name          string
		Phone         string
		Interest      string
		CreatorID     sql.NullString
		Status        string
		DealStatus    string
		FinanceStatus string
		DealDetails   string
		CreatedAt     string
		UpdatedAt     string
	}

	CustomerTransaction struct {
		ID              string
		CustomerID      sql.NullString
		Type            string
		Amount          int64
		Reason          string
		Status          string
		TransactionDate string
		CreatedBy       sql.NullString
		CreatedAt       string
		RevenuePending  bool
	}

	Profile struct {
		ID        string
		FullName  string
		ManagerID sql.NullString
		Role      string
	}

	Distributor struct {
		ID   string
		Name string
	}

	Interaction struct {
		ID         string
		CustomerID string
		UserID     sql.NullString
		Type       string
		Content    string
		RemindAt   sql.NullString
		CreatedAt  string
	}
)
