package storage

import (
	"context"
	"database/sql"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const customerColumns = `id, name, phone, interest, creator_id, status, deal_status, finance_status, deal_details, created_at, updated_at`

func scanCustomer(sc interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := sc.Scan(&c.ID, &c.Name, &c.Phone, &c.Interest, &c.CreatorID, &c.Status,
		&c.DealStatus, &c.FinanceStatus, &c.DealDetails, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListCustomersByPipeline returns customers with the given status (any when
// empty) and one of the deal statuses (any when none), most recently updated first.
func (q *Queries) ListCustomersByPipeline(ctx context.Context, status string, dealStatuses []string) ([]Customer, error) {
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if len(dealStatuses) > 0 {
		where = append(where, "deal_status IN ("+placeholders(len(dealStatuses))+")")
		for _, s := range dealStatuses {
			args = append(args, s)
		}
	}

	query := "SELECT " + customerColumns + " FROM customers"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const getCustomer = `SELECT ` + customerColumns + ` FROM customers WHERE id = ?`

func (q *Queries) GetCustomer(ctx context.Context, id string) (Customer, error) {
	return scanCustomer(q.db.QueryRowContext(ctx, getCustomer, id))
}

const countCustomers = `SELECT COUNT(*) FROM customers`

func (q *Queries) CountCustomers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countCustomers).Scan(&n)
	return n, err
}

const upsertCustomer = `INSERT INTO customers (` + customerColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`

func (q *Queries) InsertCustomerIfMissing(ctx context.Context, c Customer) error {
	_, err := q.db.ExecContext(ctx, upsertCustomer, c.ID, c.Name, c.Phone, c.Interest, c.CreatorID,
		c.Status, c.DealStatus, c.FinanceStatus, c.DealDetails, c.CreatedAt, c.UpdatedAt)
	return err
}

const setFinanceStatus = `UPDATE customers SET finance_status = ? WHERE id = ?`

func (q *Queries) SetFinanceStatus(ctx context.Context, id, status string) (int64, error) {
	res, err := q.db.ExecContext(ctx, setFinanceStatus, status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Keys absent from the patch keep their stored value.
const patchDealDetails = `UPDATE customers SET deal_details = json_patch(deal_details, ?) WHERE id = ?`

func (q *Queries) PatchDealDetails(ctx context.Context, id, patch string) (int64, error) {
	res, err := q.db.ExecContext(ctx, patchDealDetails, patch, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const addActualRevenue = `UPDATE customers
SET deal_details = json_set(deal_details, '$.actual_revenue',
    COALESCE(CAST(json_extract(deal_details, '$.actual_revenue') AS INTEGER), 0) + ?)
WHERE id = ?`

func (q *Queries) AddActualRevenue(ctx context.Context, id string, amount int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, addActualRevenue, amount, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const transactionColumns = `id, customer_id, type, amount, reason, status, transaction_date, created_by, created_at, revenue_pending`

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]CustomerTransaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CustomerTransaction
	for rows.Next() {
		var t CustomerTransaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Type, &t.Amount, &t.Reason, &t.Status,
			&t.TransactionDate, &t.CreatedBy, &t.CreatedAt, &t.RevenuePending); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM customer_transactions
ORDER BY transaction_date DESC, created_at DESC`

func (q *Queries) ListTransactions(ctx context.Context) ([]CustomerTransaction, error) {
	return q.listTransactions(ctx, listTransactions)
}

const listTransactionsByCustomer = `SELECT ` + transactionColumns + ` FROM customer_transactions
WHERE customer_id = ?
ORDER BY transaction_date DESC, created_at DESC`

func (q *Queries) ListTransactionsByCustomer(ctx context.Context, customerID string) ([]CustomerTransaction, error) {
	return q.listTransactions(ctx, listTransactionsByCustomer, customerID)
}

const createTransaction = `INSERT INTO customer_transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t CustomerTransaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction, t.ID, t.CustomerID, t.Type, t.Amount, t.Reason,
		t.Status, t.TransactionDate, t.CreatedBy, t.CreatedAt, t.RevenuePending)
	return err
}

const insertTransactionIfMissing = `INSERT INTO customer_transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`

func (q *Queries) InsertTransactionIfMissing(ctx context.Context, t CustomerTransaction) error {
	_, err := q.db.ExecContext(ctx, insertTransactionIfMissing, t.ID, t.CustomerID, t.Type, t.Amount, t.Reason,
		t.Status, t.TransactionDate, t.CreatedBy, t.CreatedAt, t.RevenuePending)
	return err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM customer_transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (CustomerTransaction, error) {
	items, err := q.listTransactions(ctx, getTransaction, id)
	if err != nil {
		return CustomerTransaction{}, err
	}
	if len(items) == 0 {
		return CustomerTransaction{}, sql.ErrNoRows
	}
	return items[0], nil
}

// Guarded on the flag so that only one caller can clear it.
const clearRevenuePending = `UPDATE customer_transactions SET revenue_pending = 0
WHERE id = ? AND revenue_pending = 1`

func (q *Queries) ClearRevenuePending(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, clearRevenuePending, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM customer_transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) listProfiles(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.ManagerID, &p.Role); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const listProfiles = `SELECT id, full_name, manager_id, role FROM profiles ORDER BY full_name, id`

func (q *Queries) ListProfiles(ctx context.Context) ([]Profile, error) {
	return q.listProfiles(ctx, listProfiles)
}

func (q *Queries) ListProfilesByIDs(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, full_name, manager_id, role FROM profiles WHERE id IN (` + placeholders(len(ids)) + `)`
	return q.listProfiles(ctx, query, args...)
}

const insertProfileIfMissing = `INSERT INTO profiles (id, full_name, manager_id, role) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`

func (q *Queries) InsertProfileIfMissing(ctx context.Context, p Profile) error {
	_, err := q.db.ExecContext(ctx, insertProfileIfMissing, p.ID, p.FullName, p.ManagerID, p.Role)
	return err
}

const listDistributors = `SELECT id, name FROM distributors ORDER BY name, id`

func (q *Queries) ListDistributors(ctx context.Context) ([]Distributor, error) {
	rows, err := q.db.QueryContext(ctx, listDistributors)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Distributor
	for rows.Next() {
		var d Distributor
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const insertDistributorIfMissing = `INSERT INTO distributors (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`

func (q *Queries) InsertDistributorIfMissing(ctx context.Context, d Distributor) error {
	_, err := q.db.ExecContext(ctx, insertDistributorIfMissing, d.ID, d.Name)
	return err
}

const createInteraction = `INSERT INTO interactions (id, customer_id, user_id, type, content, remind_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateInteraction(ctx context.Context, i Interaction) error {
	_, err := q.db.ExecContext(ctx, createInteraction, i.ID, i.CustomerID, i.UserID, i.Type, i.Content,
		i.RemindAt, i.CreatedAt)
	return err
}

const listInteractionsByCustomer = `SELECT id, customer_id, user_id, type, content, remind_at, created_at
FROM interactions WHERE customer_id = ? ORDER BY created_at DESC`

func (q *Queries) ListInteractionsByCustomer(ctx context.Context, customerID string) ([]Interaction, error) {
	rows, err := q.db.QueryContext(ctx, listInteractionsByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Interaction
	for rows.Next() {
		var i Interaction
		if err := rows.Scan(&i.ID, &i.CustomerID, &i.UserID, &i.Type, &i.Content, &i.RemindAt, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
