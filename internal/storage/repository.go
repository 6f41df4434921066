package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"custfin/internal/core"
	"custfin/internal/store"

	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02T15:04:05.000"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ store.Store           = (*SQLiteRepository)(nil)
	_ store.RevenueRecorder = (*SQLiteRepository)(nil)
)

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListCustomers implements store.CustomerReader
func (r *SQLiteRepository) ListCustomers(ctx context.Context, q store.CustomerQuery) ([]core.Customer, error) {
	rows, err := r.queries.ListCustomersByPipeline(ctx, q.Status, q.DealStatuses)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	out := make([]core.Customer, 0, len(rows))
	for _, row := range rows {
		c, err := toCustomer(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// GetCustomer implements store.CustomerReader
func (r *SQLiteRepository) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	row, err := r.queries.GetCustomer(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Customer{}, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return toCustomer(row)
}

// ListTransactions implements store.TransactionReader
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return toTransactions(ctx, rows), nil
}

// ListCustomerTransactions implements store.TransactionReader
func (r *SQLiteRepository) ListCustomerTransactions(ctx context.Context, customerID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions of customer %s: %w", customerID, err)
	}
	return toTransactions(ctx, rows), nil
}

// InsertTransaction implements store.TransactionWriter
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := r.queries.CreateTransaction(ctx, fromTransaction(t)); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"customer_id", t.CustomerID,
		"kind", t.Kind,
		"amount", t.Amount.Dong)
	return nil
}

// DeleteTransaction implements store.TransactionWriter
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// RecordRevenue implements store.RevenueRecorder: the insert and the
// actual revenue increment share one SQL transaction.
func (r *SQLiteRepository) RecordRevenue(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	n, err := q.AddActualRevenue(ctx, t.CustomerID, t.Amount.Dong)
	if err != nil {
		return fmt.Errorf("update actual revenue: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", t.CustomerID, store.ErrNotFound)
	}
	if err := q.CreateTransaction(ctx, fromTransaction(t)); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Revenue recorded in SQLite",
		"id", t.ID,
		"customer_id", t.CustomerID,
		"amount", t.Amount.Dong)
	return nil
}

// ApplyPendingRevenue implements store.RevenueApplier. Clearing the flag
// and raising the actual revenue share one SQL transaction; the guarded
// update makes a repeated call a no-op.
func (r *SQLiteRepository) ApplyPendingRevenue(ctx context.Context, transactionID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	row, err := q.GetTransaction(ctx, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("transaction %s: %w", transactionID, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("get transaction: %w", err)
	}
	n, err := q.ClearRevenuePending(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("clear revenue pending: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	n, err = q.AddActualRevenue(ctx, row.CustomerID.String, row.Amount)
	if err != nil {
		return false, fmt.Errorf("update actual revenue: %w", err)
	}
	if n == 0 {
		return false, fmt.Errorf("customer %s: %w", row.CustomerID.String, store.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Pending revenue applied in SQLite",
		"id", transactionID,
		"customer_id", row.CustomerID.String,
		"amount", row.Amount)
	return true, nil
}

// SetFinanceStatus implements store.CustomerWriter
func (r *SQLiteRepository) SetFinanceStatus(ctx context.Context, customerID string, status core.FinanceStatus) error {
	n, err := r.queries.SetFinanceStatus(ctx, customerID, string(status))
	if err != nil {
		return fmt.Errorf("set finance status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	return nil
}

// UpdateDealDetails implements store.CustomerWriter. Keys of the stored
// document this module does not know about are preserved.
func (r *SQLiteRepository) UpdateDealDetails(ctx context.Context, customerID string, deal core.DealDetails) error {
	patch, err := json.Marshal(deal)
	if err != nil {
		return fmt.Errorf("encode deal details: %w", err)
	}
	n, err := r.queries.PatchDealDetails(ctx, customerID, string(patch))
	if err != nil {
		return fmt.Errorf("update deal details: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	return nil
}

// ListProfiles implements store.ProfileReader
func (r *SQLiteRepository) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	rows, err := r.queries.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return toProfiles(rows), nil
}

// ProfilesByIDs implements store.ProfileReader
func (r *SQLiteRepository) ProfilesByIDs(ctx context.Context, ids []string) ([]core.Profile, error) {
	rows, err := r.queries.ListProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list profiles by id: %w", err)
	}
	return toProfiles(rows), nil
}

// ListDistributors implements store.DistributorReader
func (r *SQLiteRepository) ListDistributors(ctx context.Context) ([]core.Distributor, error) {
	rows, err := r.queries.ListDistributors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list distributors: %w", err)
	}
	out := make([]core.Distributor, len(rows))
	for i, d := range rows {
		out[i] = core.Distributor{ID: d.ID, Name: d.Name}
	}
	return out, nil
}

// InsertReminder implements store.ReminderWriter. Reminders are stored as
// customer interactions.
func (r *SQLiteRepository) InsertReminder(ctx context.Context, rem core.Reminder) error {
	if err := rem.Validate(); err != nil {
		return err
	}
	err := r.queries.CreateInteraction(ctx, Interaction{
		ID:         rem.ID,
		CustomerID: rem.CustomerID,
		UserID:     nullString(rem.UserID),
		Type:       rem.Type,
		Content:    rem.Content,
		RemindAt:   sql.NullString{String: formatTimestamp(rem.RemindAt), Valid: true},
		CreatedAt:  formatTimestamp(createdAt(rem.CreatedAt)),
	})
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// ListReminders implements store.ReminderReader
func (r *SQLiteRepository) ListReminders(ctx context.Context, customerID string) ([]core.Reminder, error) {
	rows, err := r.queries.ListInteractionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	var out []core.Reminder
	for _, i := range rows {
		if i.Type != core.ReminderTypeFinance {
			continue
		}
		out = append(out, core.Reminder{
			ID:         i.ID,
			CustomerID: i.CustomerID,
			UserID:     i.UserID.String,
			Type:       i.Type,
			Content:    i.Content,
			RemindAt:   parseTimestamp(i.RemindAt.String),
			CreatedAt:  parseTimestamp(i.CreatedAt),
		})
	}
	return out, nil
}

// Import copies a snapshot into the database in one transaction. Records that
// already exist are left untouched.
func (r *SQLiteRepository) Import(ctx context.Context, snap store.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	for _, p := range snap.Profiles {
		if err := q.InsertProfileIfMissing(ctx, Profile{
			ID: p.ID, FullName: p.FullName, ManagerID: nullString(p.ManagerID), Role: string(p.Role),
		}); err != nil {
			return fmt.Errorf("import profile %s: %w", p.ID, err)
		}
	}
	for _, d := range snap.Distributors {
		if err := q.InsertDistributorIfMissing(ctx, Distributor{ID: d.ID, Name: d.Name}); err != nil {
			return fmt.Errorf("import distributor %s: %w", d.ID, err)
		}
	}
	for _, c := range snap.Customers {
		row, err := fromCustomer(c)
		if err != nil {
			return err
		}
		if err := q.InsertCustomerIfMissing(ctx, row); err != nil {
			return fmt.Errorf("import customer %s: %w", c.ID, err)
		}
	}
	for _, t := range snap.Transactions {
		if err := q.InsertTransactionIfMissing(ctx, fromTransaction(t)); err != nil {
			return fmt.Errorf("import transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	slog.InfoContext(ctx, "Snapshot imported into SQLite",
		"customers", len(snap.Customers),
		"transactions", len(snap.Transactions),
		"profiles", len(snap.Profiles),
		"distributors", len(snap.Distributors))
	return nil
}

// IsEmpty reports whether no customer has been stored yet.
func (r *SQLiteRepository) IsEmpty(ctx context.Context) (bool, error) {
	n, err := r.queries.CountCustomers(ctx)
	if err != nil {
		return false, fmt.Errorf("count customers: %w", err)
	}
	return n == 0, nil
}

func toCustomer(row Customer) (core.Customer, error) {
	var deal core.DealDetails
	if row.DealDetails != "" {
		if err := json.Unmarshal([]byte(row.DealDetails), &deal); err != nil {
			return core.Customer{}, fmt.Errorf("decode deal details of customer %s: %w", row.ID, err)
		}
	}
	status := core.FinanceActive
	if core.FinanceStatus(row.FinanceStatus) == core.FinanceCompleted {
		status = core.FinanceCompleted
	}
	return core.Customer{
		ID:            row.ID,
		Name:          row.Name,
		Phone:         row.Phone,
		Interest:      row.Interest,
		CreatorID:     row.CreatorID.String,
		Status:        row.Status,
		DealStatus:    row.DealStatus,
		FinanceStatus: status,
		Deal:          deal,
		CreatedAt:     parseTimestamp(row.CreatedAt),
		UpdatedAt:     parseTimestamp(row.UpdatedAt),
	}, nil
}

func fromCustomer(c core.Customer) (Customer, error) {
	deal, err := json.Marshal(c.Deal)
	if err != nil {
		return Customer{}, fmt.Errorf("encode deal details of customer %s: %w", c.ID, err)
	}
	status := c.FinanceStatus
	if status == "" {
		status = core.FinanceActive
	}
	return Customer{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Interest:      c.Interest,
		CreatorID:     nullString(c.CreatorID),
		Status:        c.Status,
		DealStatus:    c.DealStatus,
		FinanceStatus: string(status),
		DealDetails:   string(deal),
		CreatedAt:     formatTimestamp(createdAt(c.CreatedAt)),
		UpdatedAt:     formatTimestamp(createdAt(c.UpdatedAt)),
	}, nil
}

// toTransactions normalizes stored kinds; rows that cannot be normalized are
// skipped and logged.
func toTransactions(ctx context.Context, rows []CustomerTransaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		kind, err := core.ParseKind(row.Type)
		if err != nil {
			slog.WarnContext(ctx, "Skipping transaction with unknown kind", "id", row.ID, "type", row.Type)
			continue
		}
		date, err := core.ParseDate(row.TransactionDate)
		if err != nil {
			slog.WarnContext(ctx, "Skipping transaction with invalid date", "id", row.ID, "date", row.TransactionDate)
			continue
		}
		out = append(out, core.Transaction{
			ID:         row.ID,
			CustomerID: row.CustomerID.String,
			Kind:       kind,
			Amount:     core.Money{Dong: row.Amount},
			Reason:     row.Reason,
			Status:     core.TransactionStatus(row.Status),
			Date:       date,
			CreatedBy:  row.CreatedBy.String,
			CreatedAt:  parseTimestamp(row.CreatedAt),

			RevenuePending: row.RevenuePending,
		})
	}
	return out
}

func fromTransaction(t core.Transaction) CustomerTransaction {
	return CustomerTransaction{
		ID:              t.ID,
		CustomerID:      nullString(t.CustomerID),
		Type:            string(t.Kind),
		Amount:          t.Amount.Dong,
		Reason:          t.Reason,
		Status:          string(t.Status),
		TransactionDate: t.Date.String(),
		CreatedBy:       nullString(t.CreatedBy),
		CreatedAt:       formatTimestamp(createdAt(t.CreatedAt)),
		RevenuePending:  t.RevenuePending && t.Kind == core.KindRevenue,
	}
}

func toProfiles(rows []Profile) []core.Profile {
	out := make([]core.Profile, len(rows))
	for i, p := range rows {
		out[i] = core.Profile{ID: p.ID, FullName: p.FullName, ManagerID: p.ManagerID.String, Role: core.Role(p.Role)}
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// formatTimestamp renders t in UTC with fixed width so that text ordering
// matches time ordering.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "Z"
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
