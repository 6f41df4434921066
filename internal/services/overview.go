package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"custfin/internal/core"
	"custfin/internal/finance"
)

var (
	ErrOverviewClosed = errors.New("overview closed")
	// ErrLoadDiscarded is returned by Reload when a newer load, an
	// invalidation or Close happened while it was in flight.
	ErrLoadDiscarded = errors.New("load discarded")
)

// RosterLoader loads the data the overview is derived from.
type RosterLoader interface {
	LoadRoster(ctx context.Context) (Roster, error)
}

// Overview holds the loaded roster shared by overview requests. Each load is
// tagged with a generation; a load finishing after a newer load started, after
// a local change or after Close is dropped instead of overwriting newer state.
type Overview struct {
	loader RosterLoader
	maxAge time.Duration
	now    func() time.Time
	loads  singleflight.Group

	mu       sync.Mutex
	gen      uint64
	closed   bool
	loaded   bool
	loadedAt time.Time
	state    finance.State
}

type OverviewOption func(*Overview)

// WithMaxAge makes View reload a roster older than d. Zero keeps a roster
// until it is invalidated.
func WithMaxAge(d time.Duration) OverviewOption {
	return func(o *Overview) { o.maxAge = d }
}

func NewOverview(loader RosterLoader, opts ...OverviewOption) *Overview {
	o := &Overview{loader: loader, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reload fetches the roster and installs it unless it was superseded.
func (o *Overview) Reload(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOverviewClosed
	}
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	roster, err := o.loader.LoadRoster(ctx)
	if err != nil {
		return fmt.Errorf("reload overview: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOverviewClosed
	}
	if gen != o.gen || ctx.Err() != nil {
		return ErrLoadDiscarded
	}
	o.state = finance.Reduce(o.state, finance.Loaded{
		Customers:    roster.Customers,
		Transactions: roster.Transactions,
		Profiles:     roster.Profiles,
	})
	o.loaded = true
	o.loadedAt = o.now()
	return nil
}

// Invalidate marks the roster stale after a mutation that changes it, so the
// next View reloads. Loads in flight are discarded.
func (o *Overview) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.loaded = false
}

// RemoveTransaction drops a deleted transaction from the loaded roster
// without reloading. A load in flight may have read it before the delete and
// is discarded.
func (o *Overview) RemoveTransaction(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.state = finance.Reduce(o.state, finance.TransactionRemoved{ID: id})
}

// Close discards the roster. Loads still in flight are dropped.
func (o *Overview) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.gen++
	o.loaded = false
	o.state = finance.State{}
}

// LoadedAt returns when the current roster was installed, zero when none is.
func (o *Overview) LoadedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.loaded {
		return time.Time{}
	}
	return o.loadedAt
}

// ViewParams are the filter selections of one overview request. Empty fields
// keep the actor's defaults. Refresh reloads the roster first.
type ViewParams struct {
	Tab     finance.Tab
	Search  string
	Team    string
	Member  string
	Focus   string
	Refresh bool
}

// View derives the overview for actor, loading the roster first if none is
// loaded, it is older than the max age, or p asks for a refresh.
func (o *Overview) View(ctx context.Context, actor core.Actor, p ViewParams) (finance.View, error) {
	s, err := o.snapshot(ctx, p.Refresh)
	if err != nil {
		return finance.View{}, err
	}

	s.Filters = finance.DefaultFilters(actor)
	s.Selected = ""
	for _, a := range p.actions() {
		s = finance.Reduce(s, a)
	}
	return finance.Derive(s), nil
}

func (p ViewParams) actions() []finance.Action {
	var actions []finance.Action
	if p.Tab != "" {
		actions = append(actions, finance.SetTab{Tab: p.Tab})
	}
	if p.Team != "" {
		actions = append(actions, finance.SelectTeam{Team: p.Team})
	}
	if p.Member != "" {
		actions = append(actions, finance.SelectMember{Member: p.Member})
	}
	if p.Search != "" {
		actions = append(actions, finance.SetSearch{Term: p.Search})
	}
	if p.Focus != "" {
		actions = append(actions, finance.FocusCustomer{ID: p.Focus})
	}
	return actions
}

// snapshot returns the installed roster, loading it when needed. Concurrent
// callers share one load; a load discarded by a newer change is retried once.
func (o *Overview) snapshot(ctx context.Context, refresh bool) (finance.State, error) {
	if !refresh {
		if s, ok, err := o.current(); err != nil || ok {
			return s, err
		}
	}

	key := "stale"
	if refresh {
		key = "refresh"
	}
	for attempt := 0; attempt < 2; attempt++ {
		_, err, _ := o.loads.Do(key, func() (any, error) {
			return nil, o.Reload(ctx)
		})
		if err != nil && !errors.Is(err, ErrLoadDiscarded) {
			return finance.State{}, err
		}
		s, ok, err := o.current()
		if err != nil {
			return finance.State{}, err
		}
		if ok {
			return s, nil
		}
	}
	return finance.State{}, fmt.Errorf("overview not loaded: %w", ErrLoadDiscarded)
}

// current returns the installed state and whether it is usable.
func (o *Overview) current() (finance.State, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return finance.State{}, false, ErrOverviewClosed
	}
	fresh := o.maxAge <= 0 || o.now().Sub(o.loadedAt) <= o.maxAge
	return o.state, o.loaded && fresh, nil
}
