package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindRevenue TransactionKind = "revenue"
	KindExpense TransactionKind = "expense"
	// KindDeposit is a legacy kind. It aggregates like revenue but is never created.
	KindDeposit TransactionKind = "deposit"
)

const (
	ClassCredit Class = iota + 1
	ClassDebit
)

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

const (
	FinanceActive    FinanceStatus = "active"
	FinanceCompleted FinanceStatus = "completed"
)

const (
	RoleAdmin    Role = "admin"
	RoleMod      Role = "mod"
	RoleEmployee Role = "employee"
)

// Customer pipeline values the finance module reads customers by.
const (
	CustomerStatusWon = "Chốt đơn"
	DealProcessing    = "processing"
	DealSuspended     = "suspended"
)

const (
	ReminderTypeFinance  = "finance_reminder"
	reminderContentLimit = 1000
)

type (
	TransactionKind   string
	Class             int
	TransactionStatus string
	FinanceStatus     string
	Role              string

	Date struct {
		time.Time
	}

	Money struct {
		Dong int64
	}

	Transaction struct {
		ID         string
		CustomerID string // empty for transactions not tied to a customer
		Kind       TransactionKind
		Amount     Money
		Reason     string
		Status     TransactionStatus
		Date       Date
		CreatedBy  string
		CreatedAt  time.Time

		// RevenuePending marks a revenue transaction whose amount has not
		// been added to the customer's actual revenue yet.
		RevenuePending bool
	}

	DealDetails struct {
		PaymentMethod string `json:"payment_method,omitempty"`
		PlateType     string `json:"plate_type,omitempty"`
		Revenue       int64  `json:"revenue"`
		ActualRevenue int64  `json:"actual_revenue"`
		Distributor   string `json:"distributor,omitempty"`
		Availability  string `json:"car_availability,omitempty"`
		Notes         string `json:"notes,omitempty"`
	}

	Customer struct {
		ID            string
		Name          string
		Phone         string
		Interest      string
		CreatorID     string
		Status        string
		DealStatus    string
		FinanceStatus FinanceStatus
		Deal          DealDetails
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	Profile struct {
		ID        string
		FullName  string
		ManagerID string
		Role      Role
	}

	Distributor struct {
		ID   string
		Name string
	}

	Reminder struct {
		ID         string
		CustomerID string
		UserID     string
		Type       string
		Content    string
		RemindAt   time.Time
		CreatedAt  time.Time
	}

	// Actor is the identity performing a request, as resolved by the session layer.
	Actor struct {
		ID   string
		Role Role
	}
)

// ErrValidation is wrapped by every input validation error.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyReason     = fmt.Errorf("%w: empty reason", ErrValidation)
	ErrMissingDate     = fmt.Errorf("%w: missing date", ErrValidation)
	ErrUnknownCustomer = fmt.Errorf("%w: customer not resolved", ErrValidation)
	ErrInvalidKind     = fmt.Errorf("%w: invalid transaction kind", ErrValidation)
	ErrEmptyContent    = fmt.Errorf("%w: empty content", ErrValidation)
)

// ParseKind normalizes a stored or submitted kind. Unknown kinds are rejected.
func ParseKind(s string) (TransactionKind, error) {
	switch k := TransactionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRevenue, KindExpense, KindDeposit:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Class maps a kind onto its aggregation class; zero for unknown kinds.
func (k TransactionKind) Class() Class {
	switch k {
	case KindRevenue, KindDeposit:
		return ClassCredit
	case KindExpense:
		return ClassDebit
	default:
		return 0
	}
}

// IsCredit reports whether the kind adds to income.
func (k TransactionKind) IsCredit() bool {
	return k.Class() == ClassCredit
}

func (c Class) String() string {
	switch c {
	case ClassCredit:
		return "credit"
	case ClassDebit:
		return "debit"
	default:
		return "unknown"
	}
}

// Counts reports whether the transaction takes part in statistics.
// Transactions awaiting or refused approval are listed but not summed.
func (t Transaction) Counts() bool {
	return t.Status == "" || t.Status == StatusApproved
}

// HasCustomer reports whether the transaction is tied to a customer.
func (t Transaction) HasCustomer() bool {
	return strings.TrimSpace(t.CustomerID) != ""
}

// IsCompleted reports whether the customer's finance follow-up is closed.
func (c Customer) IsCompleted() bool {
	return c.FinanceStatus == FinanceCompleted
}

// ActualRevenue returns the cumulative figure stored on the deal.
func (c Customer) ActualRevenue() Money {
	return Money{Dong: c.Deal.ActualRevenue}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
func (a Actor) IsMod() bool   { return a.Role == RoleMod }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrMissingDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (m Money) Validate() error {
	if m.Dong <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.HasCustomer() {
		return ErrUnknownCustomer
	}
	if t.Kind.Class() == 0 {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Reason) == "" {
		return ErrEmptyReason
	}
	return t.Date.Validate()
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return ErrUnknownCustomer
	}
	if r.RemindAt.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if len(r.Content) > reminderContentLimit {
		return fmt.Errorf("%w: content too long (max %d characters)", ErrValidation, reminderContentLimit)
	}
	return nil
}
