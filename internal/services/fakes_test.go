package services

import (
	"context"
	"sync"
	"time"

	"custfin/internal/amqp"
	"custfin/internal/core"
	"custfin/internal/store"
	"custfin/internal/store/memory"
)

// spyStore hides the memory store's RevenueRecorder, counts calls and injects failures.
type spyStore struct {
	store.Store

	mu              sync.Mutex
	calls           map[string]int
	failApply       error
	failList        error
	failProfiles    error
	profileLookups  int
	distributorRead int
}

func newSpyStore(seed memory.Seed) *spyStore {
	return &spyStore{Store: memory.New(seed), calls: map[string]int{}}
}

func (s *spyStore) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *spyStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *spyStore) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	s.count("GetCustomer")
	return s.Store.GetCustomer(ctx, id)
}

func (s *spyStore) ListCustomers(ctx context.Context, q store.CustomerQuery) ([]core.Customer, error) {
	s.count("ListCustomers")
	return s.Store.ListCustomers(ctx, q)
}

func (s *spyStore) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	s.count("ListTransactions")
	if s.failList != nil {
		return nil, s.failList
	}
	return s.Store.ListTransactions(ctx)
}

func (s *spyStore) InsertTransaction(ctx context.Context, t core.Transaction) error {
	s.count("InsertTransaction")
	return s.Store.InsertTransaction(ctx, t)
}

func (s *spyStore) ApplyPendingRevenue(ctx context.Context, id string) (bool, error) {
	s.count("ApplyPendingRevenue")
	if s.failApply != nil {
		return false, s.failApply
	}
	return s.Store.ApplyPendingRevenue(ctx, id)
}

func (s *spyStore) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	s.count("ListProfiles")
	if s.failProfiles != nil {
		return nil, s.failProfiles
	}
	return s.Store.ListProfiles(ctx)
}

func (s *spyStore) ProfilesByIDs(ctx context.Context, ids []string) ([]core.Profile, error) {
	s.mu.Lock()
	s.profileLookups++
	s.mu.Unlock()
	return s.Store.ProfilesByIDs(ctx, ids)
}

func (s *spyStore) ListDistributors(ctx context.Context) ([]core.Distributor, error) {
	s.mu.Lock()
	s.distributorRead++
	s.mu.Unlock()
	return s.Store.ListDistributors(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.FinanceEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *amqp.FinanceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t amqp.EventType) []*amqp.FinanceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*amqp.FinanceEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testSeed() memory.Seed {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return memory.Seed{
		Customers: []core.Customer{
			{ID: "c1", Name: "Nguyễn Văn A", CreatorID: "x", Status: core.CustomerStatusWon, DealStatus: core.DealProcessing,
				Deal: core.DealDetails{ActualRevenue: 1_000_000, Distributor: "d1"}, UpdatedAt: now},
			{ID: "c2", Name: "Tran Thi B", CreatorID: "y", Status: core.CustomerStatusWon, DealStatus: core.DealSuspended,
				Deal: core.DealDetails{ActualRevenue: 2_000_000}, UpdatedAt: now.Add(-time.Hour)},
			{ID: "c3", Name: "Lê Đức C", CreatorID: "z", Status: core.CustomerStatusWon, DealStatus: core.DealProcessing,
				FinanceStatus: core.FinanceCompleted, Deal: core.DealDetails{ActualRevenue: 700}, UpdatedAt: now.Add(-2 * time.Hour)},
		},
		Transactions: []core.Transaction{
			{ID: "t1", CustomerID: "c1", Kind: core.KindRevenue, Amount: core.Money{Dong: 1_000_000}, Reason: "Thu tiền: cọc",
				Status: core.StatusApproved, Date: core.NewDate(2024, 5, 1), CreatedBy: "x"},
			{ID: "t2", CustomerID: "c1", Kind: core.KindExpense, Amount: core.Money{Dong: 200_000}, Reason: "Chi tiền: phí",
				Status: core.StatusApproved, Date: core.NewDate(2024, 5, 2), CreatedBy: "y"},
			{ID: "t3", CustomerID: "c3", Kind: core.KindDeposit, Amount: core.Money{Dong: 500}, Reason: "legacy",
				Date: core.NewDate(2023, 1, 1), CreatedBy: "z"},
		},
		Profiles: []core.Profile{
			{ID: "m1", FullName: "Lê Quản Lý", Role: core.RoleMod},
			{ID: "x", FullName: "Phạm X", ManagerID: "m1", Role: core.RoleEmployee},
			{ID: "y", FullName: "Võ Y", ManagerID: "m1", Role: core.RoleEmployee},
			{ID: "z", FullName: "Hồ Z", Role: core.RoleEmployee},
		},
		Distributors: []core.Distributor{{ID: "d1", Name: "VinFast Hà Nội"}},
	}
}
