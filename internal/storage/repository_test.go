package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"custfin/internal/core"
	"custfin/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finance.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedSnapshot() store.Snapshot {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return store.Snapshot{
		Profiles: []core.Profile{
			{ID: "m1", FullName: "Lê Quản Lý", Role: core.RoleMod},
			{ID: "u1", FullName: "Phạm X", ManagerID: "m1", Role: core.RoleEmployee},
		},
		Distributors: []core.Distributor{{ID: "d1", Name: "VinFast Hà Nội"}},
		Customers: []core.Customer{
			{ID: "c1", Name: "Nguyễn Văn A", CreatorID: "u1", Status: core.CustomerStatusWon, DealStatus: core.DealProcessing,
				Deal: core.DealDetails{ActualRevenue: 1_000_000, Distributor: "d1"}, UpdatedAt: now.Add(-time.Hour)},
			{ID: "c2", Name: "Tran Thi B", CreatorID: "m1", Status: core.CustomerStatusWon, DealStatus: core.DealSuspended,
				FinanceStatus: core.FinanceCompleted, UpdatedAt: now},
			{ID: "c3", Name: "Lead", Status: "Tiềm năng", DealStatus: core.DealProcessing, UpdatedAt: now},
		},
		Transactions: []core.Transaction{
			{ID: "t1", CustomerID: "c1", Kind: core.KindDeposit, Amount: core.Money{Dong: 300_000}, Reason: "cọc",
				Status: core.StatusApproved, Date: core.NewDate(2024, 5, 1), CreatedBy: "u1"},
			{ID: "t2", CustomerID: "c1", Kind: core.KindExpense, Amount: core.Money{Dong: 50_000}, Reason: "phí",
				Status: core.StatusApproved, Date: core.NewDate(2024, 5, 20), CreatedBy: "u1"},
		},
	}
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finance.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	repo.Close()

	version, dirty, err := SchemaVersion(path)
	if err != nil || dirty || version != 2 {
		t.Fatalf("SchemaVersion() = %d, %v, %v", version, dirty, err)
	}
	// Running again is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
}

func TestImportAndRead(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	empty, err := repo.IsEmpty(ctx)
	if err != nil || !empty {
		t.Fatalf("IsEmpty() = %v, %v", empty, err)
	}
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	// Importing twice leaves existing rows alone.
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}

	customers, err := repo.ListCustomers(ctx, store.FinanceCustomers())
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if len(customers) != 2 || customers[0].ID != "c2" || customers[1].ID != "c1" {
		t.Fatalf("unexpected customers %+v", customers)
	}
	if !customers[0].IsCompleted() || customers[1].Deal.Distributor != "d1" || customers[1].ActualRevenue().Dong != 1_000_000 {
		t.Fatalf("customer fields not round-tripped: %+v", customers)
	}

	txs, err := repo.ListCustomerTransactions(ctx, "c1")
	if err != nil {
		t.Fatalf("ListCustomerTransactions() error = %v", err)
	}
	if len(txs) != 2 || txs[0].ID != "t2" || txs[1].Kind != core.KindDeposit {
		t.Fatalf("unexpected transactions %+v", txs)
	}

	profiles, err := repo.ProfilesByIDs(ctx, []string{"u1", "nobody"})
	if err != nil || len(profiles) != 1 || profiles[0].ManagerID != "m1" {
		t.Fatalf("ProfilesByIDs() = %+v, %v", profiles, err)
	}
	dists, err := repo.ListDistributors(ctx)
	if err != nil || len(dists) != 1 || dists[0].Name != "VinFast Hà Nội" {
		t.Fatalf("ListDistributors() = %+v, %v", dists, err)
	}
}

func TestUnknownKindsAreSkipped(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	_, err := repo.db.ExecContext(ctx, `INSERT INTO customer_transactions
		(id, customer_id, type, amount, reason, status, transaction_date, created_at)
		VALUES ('legacy', 'c1', 'refund', 10, 'x', 'approved', '2024-05-30', '2024-05-30T00:00:00.000Z')`)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	txs, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	for _, tx := range txs {
		if tx.ID == "legacy" {
			t.Fatal("transaction with unknown kind was returned")
		}
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
}

func TestRecordRevenueIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	tx := core.Transaction{
		ID: "t3", CustomerID: "c1", Kind: core.KindRevenue, Amount: core.Money{Dong: 500_000},
		Reason: "Thu tiền: đợt 2", Status: core.StatusApproved, Date: core.NewDate(2024, 6, 1), CreatedBy: "u1",
	}
	if err := repo.RecordRevenue(ctx, tx); err != nil {
		t.Fatalf("RecordRevenue() error = %v", err)
	}
	c, err := repo.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCustomer() error = %v", err)
	}
	if c.Deal.ActualRevenue != 1_500_000 {
		t.Fatalf("actual revenue = %d, want 1500000", c.Deal.ActualRevenue)
	}
	if c.Deal.Distributor != "d1" {
		t.Fatalf("other deal fields lost: %+v", c.Deal)
	}

	// A duplicate id fails the insert, so the increment must be rolled back too.
	if err := repo.RecordRevenue(ctx, tx); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	c, _ = repo.GetCustomer(ctx, "c1")
	if c.Deal.ActualRevenue != 1_500_000 {
		t.Fatalf("increment not rolled back: %d", c.Deal.ActualRevenue)
	}

	missing := tx
	missing.ID = "t4"
	missing.CustomerID = "nope"
	if err := repo.RecordRevenue(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	txs, _ := repo.ListTransactions(ctx)
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
}

func TestApplyPendingRevenue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	tx := core.Transaction{ID: "t3", CustomerID: "c1", Kind: core.KindRevenue, Amount: core.Money{Dong: 500_000},
		Reason: "Thu tiền: đợt 2", Status: core.StatusApproved, Date: core.NewDate(2024, 6, 1), CreatedBy: "u1",
		RevenuePending: true}
	if err := repo.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	txs, _ := repo.ListCustomerTransactions(ctx, "c1")
	if len(txs) != 3 || txs[0].ID != "t3" || !txs[0].RevenuePending {
		t.Fatalf("pending mark not stored: %+v", txs)
	}

	for i, want := range []bool{true, false} {
		applied, err := repo.ApplyPendingRevenue(ctx, "t3")
		if err != nil || applied != want {
			t.Fatalf("ApplyPendingRevenue() #%d = %v, %v, want %v", i+1, applied, err, want)
		}
	}
	c, _ := repo.GetCustomer(ctx, "c1")
	if c.Deal.ActualRevenue != 1_500_000 || c.Deal.Distributor != "d1" {
		t.Fatalf("unexpected deal %+v", c.Deal)
	}
	txs, _ = repo.ListCustomerTransactions(ctx, "c1")
	if txs[0].RevenuePending {
		t.Fatal("pending mark not cleared")
	}

	if _, err := repo.ApplyPendingRevenue(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCustomerWritesAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if err := repo.SetFinanceStatus(ctx, "c1", core.FinanceCompleted); err != nil {
		t.Fatalf("SetFinanceStatus() error = %v", err)
	}
	if err := repo.SetFinanceStatus(ctx, "nope", core.FinanceCompleted); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c, _ := repo.GetCustomer(ctx, "c1")
	deal := c.Deal
	deal.ActualRevenue = 42
	if err := repo.UpdateDealDetails(ctx, "c1", deal); err != nil {
		t.Fatalf("UpdateDealDetails() error = %v", err)
	}
	c, _ = repo.GetCustomer(ctx, "c1")
	if !c.IsCompleted() || c.Deal.ActualRevenue != 42 || c.Deal.Distributor != "d1" {
		t.Fatalf("unexpected customer %+v", c)
	}

	if err := repo.DeleteTransaction(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if err := repo.DeleteTransaction(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetCustomer(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertReminder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Import(ctx, seedSnapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	at := time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC)
	err := repo.InsertReminder(ctx, core.Reminder{
		ID: "r1", CustomerID: "c1", UserID: "u1", Type: core.ReminderTypeFinance,
		Content: "Nhắc hẹn thu/chi: thu đợt 3", RemindAt: at,
	})
	if err != nil {
		t.Fatalf("InsertReminder() error = %v", err)
	}
	if err := repo.InsertReminder(ctx, core.Reminder{ID: "r2", CustomerID: "c1"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reminders, err := repo.ListReminders(ctx, "c1")
	if err != nil || len(reminders) != 1 {
		t.Fatalf("ListReminders() = %+v, %v", reminders, err)
	}
	if !reminders[0].RemindAt.Equal(at) {
		t.Fatalf("remind at = %v, want %v", reminders[0].RemindAt, at)
	}
}

func TestTimestampOrdering(t *testing.T) {
	a := formatTimestamp(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	b := formatTimestamp(time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600)))
	if !(b < a) {
		t.Fatalf("expected %q < %q", b, a)
	}
	if got := parseTimestamp(a); !got.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("parseTimestamp(%q) = %v", a, got)
	}
}
