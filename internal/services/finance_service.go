package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"custfin/internal/amqp"
	"custfin/internal/cache"
	"custfin/internal/core"
	"custfin/internal/finance"
	applog "custfin/internal/log"
	"custfin/internal/store"
)

const (
	revenueReasonPrefix = "Thu tiền: "
	expenseReasonPrefix = "Chi tiền: "
	reminderPrefix      = "Nhắc hẹn thu/chi: "
)

// ErrRevenueNotApplied is returned when a revenue transaction was stored but
// the customer's actual revenue could not be updated. A compensating event is
// published when a publisher is configured.
var ErrRevenueNotApplied = errors.New("transaction recorded but actual revenue not updated")

// EventPublisher publishes finance events. *amqp.Client implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *amqp.FinanceEvent) error
}

// FinanceService orchestrates the customer finance flows against the store.
type FinanceService struct {
	store        store.Store
	publisher    EventPublisher
	names        *cache.LRUCache[string]
	distributors *cache.LRUCache[string]
	loc          *time.Location
	now          func() time.Time
	newID        func() string
}

type Option func(*FinanceService)

// WithPublisher publishes an event after each successful mutation.
func WithPublisher(p EventPublisher) Option {
	return func(s *FinanceService) { s.publisher = p }
}

// WithNameCache caches profile display names by profile id.
func WithNameCache(c *cache.LRUCache[string]) Option {
	return func(s *FinanceService) { s.names = c }
}

// WithDistributorCache caches distributor names by distributor id.
func WithDistributorCache(c *cache.LRUCache[string]) Option {
	return func(s *FinanceService) { s.distributors = c }
}

// WithLocation sets the time zone reminder times are entered in.
func WithLocation(loc *time.Location) Option {
	return func(s *FinanceService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewFinanceService(st store.Store, opts ...Option) *FinanceService {
	s := &FinanceService{
		store: st,
		loc:   time.UTC,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.names == nil {
		s.names = cache.NewLRUCache[string](1000, 10*time.Minute)
	}
	if s.distributors == nil {
		s.distributors = cache.NewLRUCache[string](200, 10*time.Minute)
	}
	return s
}

// Roster is everything the overview is derived from.
type Roster struct {
	Customers    []core.Customer
	Transactions []core.Transaction
	Profiles     []core.Profile
}

// LoadRoster fetches the finance customers, all transactions and all profiles
// concurrently. If any read fails the whole load fails.
func (s *FinanceService) LoadRoster(ctx context.Context) (Roster, error) {
	var r Roster
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		customers, err := s.store.ListCustomers(gctx, store.FinanceCustomers())
		if err != nil {
			return fmt.Errorf("load customers: %w", err)
		}
		r.Customers = customers
		return nil
	})
	g.Go(func() error {
		txs, err := s.store.ListTransactions(gctx)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		r.Transactions = txs
		return nil
	})
	g.Go(func() error {
		profiles, err := s.store.ListProfiles(gctx)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		r.Profiles = profiles
		return nil
	})
	if err := g.Wait(); err != nil {
		return Roster{}, err
	}

	for _, p := range r.Profiles {
		s.names.Set(p.ID, p.FullName)
	}
	return r, nil
}

// LoadDetail fetches one customer with its transactions and reminders, then
// resolves the creator names and the distributor name before returning.
func (s *FinanceService) LoadDetail(ctx context.Context, customerID string) (finance.Detail, error) {
	var (
		customer  core.Customer
		txs       []core.Transaction
		reminders []core.Reminder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.store.GetCustomer(gctx, customerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		customer = c
		return nil
	})
	g.Go(func() error {
		list, err := s.store.ListCustomerTransactions(gctx, customerID)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		txs = list
		return nil
	})
	g.Go(func() error {
		list, err := s.store.ListReminders(gctx, customerID)
		if err != nil {
			return fmt.Errorf("load reminders: %w", err)
		}
		reminders = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return finance.Detail{}, err
	}

	var (
		names       map[string]string
		distributor string
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		creators := make([]string, 0, len(txs))
		for _, t := range txs {
			creators = append(creators, t.CreatedBy)
		}
		n, err := s.profileNames(gctx, creators)
		if err != nil {
			return fmt.Errorf("resolve creator names: %w", err)
		}
		names = n
		return nil
	})
	g.Go(func() error {
		d, err := s.distributorName(gctx, customer.Deal.Distributor)
		if err != nil {
			return fmt.Errorf("resolve distributor: %w", err)
		}
		distributor = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return finance.Detail{}, err
	}

	d := finance.NewDetail(customer, txs, names)
	d.DistributorName = distributor
	d.Reminders = reminders
	return d, nil
}

// profileNames returns the display names of ids, reading only the ids that
// are not cached.
func (s *FinanceService) profileNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if name, ok := s.names.Get(id); ok {
			names[id] = name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	profiles, err := s.store.ProfilesByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		s.names.Set(p.ID, p.FullName)
		names[p.ID] = p.FullName
	}
	return names, nil
}

// distributorName maps a distributor id to its name. Unknown ids are shown as is.
func (s *FinanceService) distributorName(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	return s.distributors.GetOrLoad(id, func() (string, error) {
		list, err := s.store.ListDistributors(ctx)
		if err != nil {
			return "", err
		}
		name := id
		for _, d := range list {
			s.distributors.Set(d.ID, d.Name)
			if d.ID == id {
				name = d.Name
			}
		}
		return name, nil
	})
}

// RecordRequest is the raw input of the transaction form.
type RecordRequest struct {
	CustomerID string
	Kind       string
	Amount     string
	Reason     string
	Date       string
	Actor      core.Actor
}

// RecordResult is the stored transaction and the customer's actual revenue
// after the write.
type RecordResult struct {
	Transaction   core.Transaction
	ActualRevenue core.Money
}

func (r RecordRequest) parse() (core.Transaction, error) {
	if strings.TrimSpace(r.CustomerID) == "" {
		return core.Transaction{}, core.ErrUnknownCustomer
	}
	kind, err := core.ParseKind(r.Kind)
	if err != nil {
		return core.Transaction{}, err
	}
	if kind != core.KindRevenue && kind != core.KindExpense {
		return core.Transaction{}, fmt.Errorf("%w: %q cannot be recorded", core.ErrInvalidKind, r.Kind)
	}
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		return core.Transaction{}, core.ErrEmptyReason
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	prefix := expenseReasonPrefix
	if kind == core.KindRevenue {
		prefix = revenueReasonPrefix
	}
	return core.Transaction{
		CustomerID: strings.TrimSpace(r.CustomerID),
		Kind:       kind,
		Amount:     amount,
		Reason:     prefix + reason,
		Status:     core.StatusApproved,
		Date:       date,
		CreatedBy:  r.Actor.ID,
	}, nil
}

// RecordTransaction validates and stores one transaction. Input errors are
// reported before the store is touched. A revenue transaction also raises the
// customer's actual revenue by its amount: in one write when the store is a
// store.RevenueRecorder, otherwise in a second write whose failure returns
// ErrRevenueNotApplied alongside the stored transaction.
func (s *FinanceService) RecordTransaction(ctx context.Context, req RecordRequest) (RecordResult, error) {
	t, err := req.parse()
	if err != nil {
		return RecordResult{}, err
	}

	customer, err := s.store.GetCustomer(ctx, t.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		return RecordResult{}, fmt.Errorf("%w: %s", core.ErrUnknownCustomer, t.CustomerID)
	}
	if err != nil {
		return RecordResult{}, fmt.Errorf("load customer: %w", err)
	}

	t.ID = s.newID()
	t.CreatedAt = s.now()
	result := RecordResult{Transaction: t, ActualRevenue: customer.ActualRevenue()}

	if t.Kind != core.KindRevenue {
		if err := s.store.InsertTransaction(ctx, t); err != nil {
			return RecordResult{}, fmt.Errorf("save transaction: %w", err)
		}
		s.publish(ctx, recordedEvent(t))
		return result, nil
	}

	if rec, ok := s.store.(store.RevenueRecorder); ok {
		if err := rec.RecordRevenue(ctx, t); err != nil {
			return RecordResult{}, fmt.Errorf("record revenue: %w", err)
		}
		result.ActualRevenue = result.ActualRevenue.Add(t.Amount)
		s.publish(ctx, recordedEvent(t))
		return result, nil
	}

	// The row is stored pending and the revenue applied in a second write.
	// Whoever clears the pending mark first adds the amount, so a retried
	// compensation cannot count it twice.
	t.RevenuePending = true
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return RecordResult{}, fmt.Errorf("save transaction: %w", err)
	}
	s.publish(ctx, recordedEvent(t))

	applied, err := s.store.ApplyPendingRevenue(ctx, t.ID)
	if err != nil {
		result.Transaction.RevenuePending = true
		fields := applog.NewFields().
			WithTransaction(t.ID, customer.ID, string(t.Kind), t.Amount.Dong).
			WithError(err)
		slog.ErrorContext(ctx, "Actual revenue update failed after transaction was saved", fields.ToSlice()...)
		e := amqp.NewFinanceEvent(amqp.EventRevenueUnapplied, customer.ID)
		e.TransactionID = t.ID
		e.Amount = t.Amount.Dong
		e.ActorID = t.CreatedBy
		s.publish(ctx, e)
		return result, fmt.Errorf("%w: %v", ErrRevenueNotApplied, err)
	}
	if applied {
		result.ActualRevenue = result.ActualRevenue.Add(t.Amount)
	}
	return result, nil
}

// DeleteTransaction removes one transaction. The customer's actual revenue is
// left as it is.
func (s *FinanceService) DeleteTransaction(ctx context.Context, id string, actor core.Actor) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing transaction id", core.ErrValidation)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	e := amqp.NewFinanceEvent(amqp.EventTransactionDeleted, "")
	e.TransactionID = id
	e.ActorID = actor.ID
	s.publish(ctx, e)
	return nil
}

// MarkFinanceCompleted closes the customer's finance follow-up.
func (s *FinanceService) MarkFinanceCompleted(ctx context.Context, customerID string, actor core.Actor) error {
	if strings.TrimSpace(customerID) == "" {
		return core.ErrUnknownCustomer
	}
	if err := s.store.SetFinanceStatus(ctx, customerID, core.FinanceCompleted); err != nil {
		return fmt.Errorf("mark finance completed: %w", err)
	}
	e := amqp.NewFinanceEvent(amqp.EventCustomerCompleted, customerID)
	e.ActorID = actor.ID
	s.publish(ctx, e)
	return nil
}

// ReminderRequest is the raw input of the finance reminder form.
type ReminderRequest struct {
	CustomerID string
	Date       string
	Time       string
	Content    string
	Actor      core.Actor
}

// CreateReminder stores a payment follow-up reminder on the customer.
func (s *FinanceService) CreateReminder(ctx context.Context, req ReminderRequest) (core.Reminder, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return core.Reminder{}, core.ErrUnknownCustomer
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Reminder{}, err
	}
	clock, err := time.Parse("15:04", strings.TrimSpace(req.Time))
	if err != nil {
		return core.Reminder{}, fmt.Errorf("%w: invalid time %q", core.ErrValidation, req.Time)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return core.Reminder{}, core.ErrEmptyContent
	}

	if _, err := s.store.GetCustomer(ctx, req.CustomerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Reminder{}, fmt.Errorf("%w: %s", core.ErrUnknownCustomer, req.CustomerID)
		}
		return core.Reminder{}, fmt.Errorf("load customer: %w", err)
	}

	r := core.Reminder{
		ID:         s.newID(),
		CustomerID: req.CustomerID,
		UserID:     req.Actor.ID,
		Type:       core.ReminderTypeFinance,
		Content:    reminderPrefix + content,
		RemindAt: time.Date(date.Year(), date.Month(), date.Day(),
			clock.Hour(), clock.Minute(), 0, 0, s.loc),
		CreatedAt: s.now(),
	}
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}
	if err := s.store.InsertReminder(ctx, r); err != nil {
		return core.Reminder{}, fmt.Errorf("save reminder: %w", err)
	}
	return r, nil
}

// Discrepancy is a customer with revenue transactions whose amount was
// stored but never added to its actual revenue.
type Discrepancy struct {
	CustomerID   string
	Name         string
	Stored       core.Money
	Pending      core.Money
	Expected     core.Money
	Transactions []string
}

// Reconcile finds the revenue transactions left pending by a failed second
// write. With apply, each one is added to its customer's actual revenue.
// Revenue entered outside this module has no transaction and is never
// touched.
func (s *FinanceService) Reconcile(ctx context.Context, apply bool) ([]Discrepancy, error) {
	roster, err := s.LoadRoster(ctx)
	if err != nil {
		return nil, err
	}

	customers := make(map[string]core.Customer, len(roster.Customers))
	for _, c := range roster.Customers {
		customers[c.ID] = c
	}
	var (
		out   []Discrepancy
		index = map[string]int{}
	)
	for _, t := range roster.Transactions {
		if !t.RevenuePending || t.Kind != core.KindRevenue || t.CustomerID == "" {
			continue
		}
		i, ok := index[t.CustomerID]
		if !ok {
			c, found := customers[t.CustomerID]
			if !found {
				c, err = s.store.GetCustomer(ctx, t.CustomerID)
				if err != nil {
					slog.WarnContext(ctx, "Skipping pending revenue of unreadable customer",
						applog.NewFields().WithTransaction(t.ID, t.CustomerID, string(t.Kind), t.Amount.Dong).WithError(err).ToSlice()...)
					continue
				}
			}
			i = len(out)
			index[t.CustomerID] = i
			out = append(out, Discrepancy{CustomerID: c.ID, Name: c.Name, Stored: c.ActualRevenue()})
		}
		d := &out[i]
		d.Pending = d.Pending.Add(t.Amount)
		d.Expected = d.Stored.Add(d.Pending)
		d.Transactions = append(d.Transactions, t.ID)
	}
	if !apply {
		return out, nil
	}

	for _, d := range out {
		fields := applog.NewFields().WithCustomer(d.CustomerID).WithOperation(applog.OpReconcile)
		for _, id := range d.Transactions {
			applied, err := s.store.ApplyPendingRevenue(ctx, id)
			if err != nil {
				return out, fmt.Errorf("reconcile customer %s: %w", d.CustomerID, err)
			}
			if !applied {
				slog.DebugContext(ctx, "Pending revenue already applied",
					append(fields.ToSlice(), applog.FieldTransactionID, id)...)
			}
		}
		slog.InfoContext(ctx, "Actual revenue reconciled",
			append(fields.ToSlice(), "stored", d.Stored.Dong, "expected", d.Expected.Dong)...)
	}
	return out, nil
}

// ApplyUnappliedRevenue is the compensating action for a revenue.unapplied
// event: it applies the event's pending transaction. Redelivered events and
// transactions deleted in the meantime change nothing.
func (s *FinanceService) ApplyUnappliedRevenue(ctx context.Context, e *amqp.FinanceEvent) error {
	if e == nil || e.Type != amqp.EventRevenueUnapplied {
		return fmt.Errorf("%w: not a revenue.unapplied event", core.ErrValidation)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	fields := applog.NewFields().WithCustomer(e.CustomerID)
	fields[applog.FieldTransactionID] = e.TransactionID
	applied, err := s.store.ApplyPendingRevenue(ctx, e.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Unapplied revenue transaction no longer exists", fields.ToSlice()...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply revenue: %w", err)
	}
	if !applied {
		slog.InfoContext(ctx, "Unapplied revenue was already applied", fields.ToSlice()...)
		return nil
	}
	fields[applog.FieldAmount] = e.Amount
	slog.InfoContext(ctx, "Unapplied revenue applied", fields.ToSlice()...)
	return nil
}

// Publishing is best effort: the store write already succeeded.
func (s *FinanceService) publish(ctx context.Context, e *amqp.FinanceEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, e); err != nil {
		fields := applog.NewFields().WithCustomer(e.CustomerID).WithError(err)
		fields[applog.FieldEventType] = string(e.Type)
		slog.ErrorContext(ctx, "Failed to publish finance event", fields.ToSlice()...)
	}
}

func recordedEvent(t core.Transaction) *amqp.FinanceEvent {
	e := amqp.NewFinanceEvent(amqp.EventTransactionRecorded, t.CustomerID)
	e.TransactionID = t.ID
	e.Kind = string(t.Kind)
	e.Amount = t.Amount.Dong
	e.Reason = t.Reason
	e.Date = t.Date.String()
	e.ActorID = t.CreatedBy
	return e
}
