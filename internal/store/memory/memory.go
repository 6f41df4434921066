// Package memory is an in-process implementation of the store ports, seeded
// from JSON files. It backs local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"custfin/internal/core"
	"custfin/internal/store"
)

// Seed is the initial content of a Store.
type Seed = store.Snapshot

type Store struct {
	mu           sync.Mutex
	customers    []core.Customer
	txs          []core.Transaction
	profiles     []core.Profile
	distributors []core.Distributor
	reminders    []core.Reminder
}

var (
	_ store.Store           = (*Store)(nil)
	_ store.RevenueRecorder = (*Store)(nil)
)

func New(seed Seed) *Store {
	return &Store{
		customers:    append([]core.Customer(nil), seed.Customers...),
		txs:          append([]core.Transaction(nil), seed.Transactions...),
		profiles:     append([]core.Profile(nil), seed.Profiles...),
		distributors: append([]core.Distributor(nil), seed.Distributors...),
	}
}

type (
	customerRecord struct {
		ID            string           `json:"id"`
		Name          string           `json:"name"`
		Phone         string           `json:"phone"`
		Interest      string           `json:"interest"`
		CreatorID     string           `json:"creator_id"`
		Status        string           `json:"status"`
		DealStatus    string           `json:"deal_status"`
		FinanceStatus string           `json:"finance_status"`
		Deal          core.DealDetails `json:"deal_details"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}

	transactionRecord struct {
		ID         string    `json:"id"`
		CustomerID string    `json:"customer_id"`
		Type       string    `json:"type"`
		Amount     int64     `json:"amount"`
		Reason     string    `json:"reason"`
		Status     string    `json:"status"`
		Date       string    `json:"transaction_date"`
		CreatedBy  string    `json:"created_by"`
		CreatedAt  time.Time `json:"created_at"`
		Pending    bool      `json:"revenue_pending"`
	}

	profileRecord struct {
		ID        string `json:"id"`
		FullName  string `json:"full_name"`
		ManagerID string `json:"manager_id"`
		Role      string `json:"role"`
	}

	distributorRecord struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
)

// NewFromFiles seeds a Store from customers.json, transactions.json,
// profiles.json and distributors.json under base. Missing files are treated
// as empty; malformed files are an error. Transactions whose kind cannot be
// normalized are skipped with a warning.
func NewFromFiles(base string) (*Store, error) {
	var (
		customers    []customerRecord
		txs          []transactionRecord
		profiles     []profileRecord
		distributors []distributorRecord
	)
	for name, dst := range map[string]any{
		"customers.json":    &customers,
		"transactions.json": &txs,
		"profiles.json":     &profiles,
		"distributors.json": &distributors,
	} {
		if err := readJSON(filepath.Join(base, name), dst); err != nil {
			return nil, err
		}
	}

	var seed Seed
	for _, c := range customers {
		seed.Customers = append(seed.Customers, core.Customer{
			ID:            c.ID,
			Name:          c.Name,
			Phone:         c.Phone,
			Interest:      c.Interest,
			CreatorID:     c.CreatorID,
			Status:        c.Status,
			DealStatus:    c.DealStatus,
			FinanceStatus: financeStatus(c.FinanceStatus),
			Deal:          c.Deal,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	for _, r := range txs {
		kind, err := core.ParseKind(r.Type)
		if err != nil {
			slog.Warn("Skipping seeded transaction", "id", r.ID, "error", err)
			continue
		}
		date, err := core.ParseDate(r.Date)
		if err != nil {
			slog.Warn("Skipping seeded transaction", "id", r.ID, "error", err)
			continue
		}
		seed.Transactions = append(seed.Transactions, core.Transaction{
			ID:         r.ID,
			CustomerID: r.CustomerID,
			Kind:       kind,
			Amount:     core.Money{Dong: r.Amount},
			Reason:     r.Reason,
			Status:     core.TransactionStatus(r.Status),
			Date:       date,
			CreatedBy:  r.CreatedBy,
			CreatedAt:  r.CreatedAt,

			RevenuePending: r.Pending && kind == core.KindRevenue,
		})
	}
	for _, p := range profiles {
		seed.Profiles = append(seed.Profiles, core.Profile{
			ID: p.ID, FullName: p.FullName, ManagerID: p.ManagerID, Role: core.Role(p.Role),
		})
	}
	for _, d := range distributors {
		seed.Distributors = append(seed.Distributors, core.Distributor{ID: d.ID, Name: d.Name})
	}
	return New(seed), nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func financeStatus(s string) core.FinanceStatus {
	if core.FinanceStatus(s) == core.FinanceCompleted {
		return core.FinanceCompleted
	}
	return core.FinanceActive
}

func (s *Store) ListCustomers(_ context.Context, q store.CustomerQuery) ([]core.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Customer
	for _, c := range s.customers {
		if q.Matches(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (core.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.customerIndex(id)
	if i < 0 {
		return core.Customer{}, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return s.customers[i], nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedByDate(append([]core.Transaction(nil), s.txs...)), nil
}

func (s *Store) ListCustomerTransactions(_ context.Context, customerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return sortedByDate(out), nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.txs {
		if t.ID == id {
			s.txs = append(s.txs[:i:i], s.txs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
}

func (s *Store) SetFinanceStatus(_ context.Context, customerID string, status core.FinanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.customerIndex(customerID)
	if i < 0 {
		return fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	s.customers[i].FinanceStatus = status
	return nil
}

func (s *Store) UpdateDealDetails(_ context.Context, customerID string, deal core.DealDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.customerIndex(customerID)
	if i < 0 {
		return fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	s.customers[i].Deal = deal
	return nil
}

// RecordRevenue inserts t and adds its amount to the customer's actual
// revenue while holding the store lock.
func (s *Store) RecordRevenue(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.customerIndex(t.CustomerID)
	if i < 0 {
		return fmt.Errorf("customer %s: %w", t.CustomerID, store.ErrNotFound)
	}
	if err := s.insertLocked(t); err != nil {
		return err
	}
	s.customers[i].Deal.ActualRevenue += t.Amount.Dong
	return nil
}

// ApplyPendingRevenue implements store.RevenueApplier.
func (s *Store) ApplyPendingRevenue(_ context.Context, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ti := range s.txs {
		t := &s.txs[ti]
		if t.ID != transactionID {
			continue
		}
		if !t.RevenuePending {
			return false, nil
		}
		i := s.customerIndex(t.CustomerID)
		if i < 0 {
			return false, fmt.Errorf("customer %s: %w", t.CustomerID, store.ErrNotFound)
		}
		s.customers[i].Deal.ActualRevenue += t.Amount.Dong
		t.RevenuePending = false
		return true, nil
	}
	return false, fmt.Errorf("transaction %s: %w", transactionID, store.ErrNotFound)
}

func (s *Store) ListProfiles(_ context.Context) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Profile(nil), s.profiles...), nil
}

func (s *Store) ProfilesByIDs(_ context.Context, ids []string) ([]core.Profile, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Profile
	for _, p := range s.profiles {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListDistributors(_ context.Context) ([]core.Distributor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Distributor(nil), s.distributors...), nil
}

func (s *Store) InsertReminder(_ context.Context, r core.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = append(s.reminders, r)
	return nil
}

// Snapshot copies the current content of the store.
func (s *Store) Snapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Snapshot{
		Customers:    append([]core.Customer(nil), s.customers...),
		Transactions: append([]core.Transaction(nil), s.txs...),
		Profiles:     append([]core.Profile(nil), s.profiles...),
		Distributors: append([]core.Distributor(nil), s.distributors...),
	}
}

// Reminders returns the reminders stored so far.
func (s *Store) Reminders() []core.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Reminder(nil), s.reminders...)
}

func (s *Store) ListReminders(_ context.Context, customerID string) ([]core.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Reminder
	for _, r := range s.reminders {
		if r.CustomerID == customerID && r.Type == core.ReminderTypeFinance {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) insertLocked(t core.Transaction) error {
	for _, existing := range s.txs {
		if existing.ID == t.ID {
			return fmt.Errorf("transaction %s already exists", t.ID)
		}
	}
	s.txs = append(s.txs, t)
	return nil
}

func (s *Store) customerIndex(id string) int {
	for i, c := range s.customers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func sortedByDate(txs []core.Transaction) []core.Transaction {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return txs
}
