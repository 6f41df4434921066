package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
	"custfin/internal/store/memory"
)

type loaderFunc func(ctx context.Context) (Roster, error)

func (f loaderFunc) LoadRoster(ctx context.Context) (Roster, error) { return f(ctx) }

func seedRoster(t *testing.T) Roster {
	t.Helper()
	svc := newTestService(memory.New(testSeed()), &recordingPublisher{})
	r, err := svc.LoadRoster(context.Background())
	if err != nil {
		t.Fatalf("LoadRoster() error = %v", err)
	}
	return r
}

func countingLoader(r Roster, calls *int32) loaderFunc {
	return func(context.Context) (Roster, error) {
		atomic.AddInt32(calls, 1)
		return r, nil
	}
}

var admin = core.Actor{ID: "admin", Role: core.RoleAdmin}

func rowIDs(v finance.View) []string {
	out := make([]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		out = append(out, r.Customer.ID)
	}
	return out
}

func TestOverviewViewLoadsOnce(t *testing.T) {
	var calls int32
	o := NewOverview(countingLoader(seedRoster(t), &calls))
	ctx := context.Background()

	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if got := rowIDs(v); len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("active rows = %v", got)
	}
	if v.Summary.Income.Dong != 1_000_000 || v.Summary.Expense.Dong != 200_000 {
		t.Fatalf("summary = %+v", v.Summary)
	}

	v, err = o.View(ctx, admin, ViewParams{Tab: finance.TabCompleted})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if got := rowIDs(v); len(got) != 1 || got[0] != "c3" {
		t.Fatalf("completed rows = %v", got)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("loaded %d times, want 1", n)
	}
	if o.LoadedAt().IsZero() {
		t.Fatal("LoadedAt not set")
	}
}

func TestOverviewFiltersDoNotLeakBetweenRequests(t *testing.T) {
	var calls int32
	o := NewOverview(countingLoader(seedRoster(t), &calls))
	ctx := context.Background()

	if _, err := o.View(ctx, admin, ViewParams{Search: "tran"}); err != nil {
		t.Fatal(err)
	}
	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Filters.Search != "" || len(v.Rows) != 2 {
		t.Fatalf("filters leaked: %+v rows=%v", v.Filters, rowIDs(v))
	}
}

func TestOverviewModDefaultsToOwnTeam(t *testing.T) {
	r := seedRoster(t)
	var calls int32
	o := NewOverview(countingLoader(r, &calls))

	v, err := o.View(context.Background(), core.Actor{ID: "m1", Role: core.RoleMod}, ViewParams{Tab: finance.TabCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if v.Filters.Team != "m1" {
		t.Fatalf("team = %q, want m1", v.Filters.Team)
	}
	// c3 was created by z, who is outside m1's team.
	if len(v.Rows) != 0 {
		t.Fatalf("rows = %v, want none", rowIDs(v))
	}

	v, err = o.View(context.Background(), core.Actor{ID: "m1", Role: core.RoleMod}, ViewParams{Member: "y"})
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(v); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("member rows = %v", got)
	}
}

func TestOverviewFocus(t *testing.T) {
	var calls int32
	o := NewOverview(countingLoader(seedRoster(t), &calls))

	v, err := o.View(context.Background(), admin, ViewParams{Focus: "c3"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Filters.Tab != finance.TabCompleted || v.Filters.Search != "Lê Đức C" {
		t.Fatalf("filters = %+v", v.Filters)
	}
	if v.Selected == nil || v.Selected.Customer.ID != "c3" || v.Selected.Stats.Income.Dong != 500 {
		t.Fatalf("selected = %+v", v.Selected)
	}
}

func TestOverviewRemoveTransaction(t *testing.T) {
	var calls int32
	o := NewOverview(countingLoader(seedRoster(t), &calls))
	ctx := context.Background()

	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}
	o.RemoveTransaction("t1")
	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Income.Dong != 0 || v.Summary.Balance.Dong != -200_000 {
		t.Fatalf("summary after removal = %+v", v.Summary)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("removal reloaded: %d loads", n)
	}
}

func TestOverviewInvalidateReloads(t *testing.T) {
	var calls int32
	o := NewOverview(countingLoader(seedRoster(t), &calls))
	ctx := context.Background()

	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}
	o.Invalidate()
	if !o.LoadedAt().IsZero() {
		t.Fatal("still loaded after Invalidate")
	}
	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("loaded %d times, want 2", n)
	}
}

func TestOverviewDiscardsStaleLoad(t *testing.T) {
	fresh := seedRoster(t)
	stale := Roster{Customers: fresh.Customers[:1]}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return stale, nil
		}
		return fresh, nil
	}))

	done := make(chan error, 1)
	go func() { done <- o.Reload(context.Background()) }()
	<-started

	if err := o.Reload(context.Background()); err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrLoadDiscarded) {
			t.Fatalf("stale Reload() error = %v, want ErrLoadDiscarded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stale load did not return")
	}

	v, err := o.View(context.Background(), admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("stale roster installed: rows = %v", rowIDs(v))
	}
}

func TestOverviewCloseDropsLoadInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := seedRoster(t)
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		close(started)
		<-release
		return r, nil
	}))

	done := make(chan error, 1)
	go func() { done <- o.Reload(context.Background()) }()
	<-started
	o.Close()
	close(release)

	if err := <-done; !errors.Is(err, ErrOverviewClosed) {
		t.Fatalf("Reload() error = %v, want ErrOverviewClosed", err)
	}
	if _, err := o.View(context.Background(), admin, ViewParams{}); !errors.Is(err, ErrOverviewClosed) {
		t.Fatalf("View() error = %v, want ErrOverviewClosed", err)
	}
	if err := o.Reload(context.Background()); !errors.Is(err, ErrOverviewClosed) {
		t.Fatalf("Reload() after Close error = %v", err)
	}
}

func TestOverviewCancelledLoadIsDiscarded(t *testing.T) {
	r := seedRoster(t)
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		cancel()
		return r, nil
	}))

	if err := o.Reload(ctx); !errors.Is(err, ErrLoadDiscarded) {
		t.Fatalf("Reload() error = %v, want ErrLoadDiscarded", err)
	}
	if !o.LoadedAt().IsZero() {
		t.Fatal("cancelled load was installed")
	}
}

func TestOverviewLoadFailure(t *testing.T) {
	boom := errors.New("boom")
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		return Roster{}, boom
	}))
	if _, err := o.View(context.Background(), admin, ViewParams{}); !errors.Is(err, boom) {
		t.Fatalf("View() error = %v, want boom", err)
	}
}

func externalRevenue(id string, amount int64) core.Transaction {
	return core.Transaction{
		ID: id, CustomerID: "c1", Kind: core.KindRevenue, Amount: core.Money{Dong: amount}, Reason: "Thu tiền: chuyển khoản",
		Status: core.StatusApproved, Date: core.NewDate(2024, 6, 1), CreatedBy: "y",
	}
}

func TestOverviewReloadsAfterMaxAge(t *testing.T) {
	ctx := context.Background()
	st := memory.New(testSeed())
	o := NewOverview(newTestService(st, &recordingPublisher{}), WithMaxAge(5*time.Minute))
	now := fixedNow
	o.now = func() time.Time { return now }

	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}
	// Written by another instance: nothing invalidates this overview.
	if err := st.InsertTransaction(ctx, externalRevenue("ext-1", 250_000)); err != nil {
		t.Fatal(err)
	}

	now = now.Add(4 * time.Minute)
	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Income.Dong != 1_000_000 {
		t.Fatalf("income before expiry = %d, want cached 1000000", v.Summary.Income.Dong)
	}

	now = now.Add(2 * time.Minute)
	v, err = o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Income.Dong != 1_250_000 {
		t.Fatalf("income after expiry = %d, want 1250000", v.Summary.Income.Dong)
	}
	if !o.LoadedAt().Equal(now) {
		t.Fatalf("LoadedAt = %v, want %v", o.LoadedAt(), now)
	}
}

func TestOverviewRefresh(t *testing.T) {
	ctx := context.Background()
	st := memory.New(testSeed())
	o := NewOverview(newTestService(st, &recordingPublisher{}))

	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertTransaction(ctx, externalRevenue("ext-1", 250_000)); err != nil {
		t.Fatal(err)
	}

	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil || v.Summary.Income.Dong != 1_000_000 {
		t.Fatalf("cached View() income = %d, %v", v.Summary.Income.Dong, err)
	}
	v, err = o.View(ctx, admin, ViewParams{Refresh: true})
	if err != nil || v.Summary.Income.Dong != 1_250_000 {
		t.Fatalf("refreshed View() income = %d, %v", v.Summary.Income.Dong, err)
	}
}

func TestOverviewRemoveTransactionDiscardsLoadInFlight(t *testing.T) {
	r := seedRoster(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			close(started)
			<-release
		}
		// The blocked load read t1 before it was deleted.
		return r, nil
	}))
	ctx := context.Background()

	if _, err := o.View(ctx, admin, ViewParams{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Reload(ctx) }()
	<-started
	o.RemoveTransaction("t1")
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrLoadDiscarded) {
			t.Fatalf("Reload() error = %v, want ErrLoadDiscarded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("load did not return")
	}

	v, err := o.View(ctx, admin, ViewParams{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Income.Dong != 0 {
		t.Fatalf("deleted transaction resurrected: income = %d", v.Summary.Income.Dong)
	}
}

func TestOverviewConcurrentColdViews(t *testing.T) {
	r := seedRoster(t)
	var calls int32
	o := NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return r, nil
	}))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.View(context.Background(), admin, ViewParams{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("View() error = %v", err)
		}
	}
	if n := atomic.LoadInt32(&calls); n > callers {
		t.Fatalf("loaded %d times for %d callers", n, callers)
	}
}

func TestOverviewRetriesDiscardedLoad(t *testing.T) {
	r := seedRoster(t)
	var (
		o     *Overview
		calls int32
	)
	o = NewOverview(loaderFunc(func(context.Context) (Roster, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// A mutation lands while the first load is in flight.
			o.Invalidate()
		}
		return r, nil
	}))

	v, err := o.View(context.Background(), admin, ViewParams{})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("rows = %v", rowIDs(v))
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("loaded %d times, want 2", n)
	}
}
