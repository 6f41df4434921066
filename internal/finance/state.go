package finance

import "custfin/internal/core"

// State is the overview state: the loaded roster plus the filter selection.
// States are values; Reduce returns a new one and never writes through the old.
type State struct {
	Customers    []core.Customer
	Transactions []core.Transaction
	Directory    Directory
	Filters      Filters
	Selected     string
}

// NewState returns an empty state with the actor's default filters.
func NewState(actor core.Actor) State {
	return State{Filters: DefaultFilters(actor)}
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

type (
	// Loaded replaces the roster. Filters survive a reload.
	Loaded struct {
		Customers    []core.Customer
		Transactions []core.Transaction
		Profiles     []core.Profile
	}

	SetTab struct{ Tab Tab }

	SetSearch struct{ Term string }

	// SelectTeam changes the team and resets the member selection.
	SelectTeam struct{ Team string }

	SelectMember struct{ Member string }

	// TransactionRemoved drops one transaction from the loaded set after a
	// successful delete, without reloading.
	TransactionRemoved struct{ ID string }

	// FocusCustomer opens a customer from a link: the tab follows the customer,
	// the search is seeded with its name when empty.
	FocusCustomer struct{ ID string }
)

// Reduce applies a to s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

func (a Loaded) apply(s State) State {
	s.Customers = append([]core.Customer(nil), a.Customers...)
	s.Transactions = append([]core.Transaction(nil), a.Transactions...)
	s.Directory = NewDirectory(a.Profiles)
	return s
}

func (a SetTab) apply(s State) State {
	s.Filters.Tab = a.Tab
	return s
}

func (a SetSearch) apply(s State) State {
	s.Filters.Search = a.Term
	return s
}

func (a SelectTeam) apply(s State) State {
	s.Filters.Team = a.Team
	s.Filters.Member = All
	return s
}

func (a SelectMember) apply(s State) State {
	s.Filters.Member = a.Member
	return s
}

func (a TransactionRemoved) apply(s State) State {
	s.Transactions = withoutTransaction(s.Transactions, a.ID)
	return s
}

func (a FocusCustomer) apply(s State) State {
	for _, c := range s.Customers {
		if c.ID != a.ID {
			continue
		}
		s.Filters.Tab = TabOf(c)
		if s.Filters.Search == "" {
			s.Filters.Search = c.Name
		}
		s.Selected = c.ID
		return s
	}
	return s
}

// View is the derived, render-ready overview.
type View struct {
	Filters  Filters
	Rows     []Row
	Summary  Stats
	Teams    []Member
	Members  []Member
	Selected *Row
}

// Derive computes the view of s. It is a pure function of the state.
func Derive(s State) View {
	byCustomer := ComputeStatsByCustomer(s.Transactions)
	rows := FilterCustomers(s.Customers, byCustomer, s.Directory, s.Filters)

	v := View{
		Filters: s.Filters,
		Rows:    rows,
		Summary: Summarize(rows),
		Teams:   s.Directory.Teams(),
		Members: s.Directory.Members(s.Filters.Team),
	}
	if s.Selected != "" {
		for _, c := range s.Customers {
			if c.ID == s.Selected {
				v.Selected = &Row{Customer: c, Stats: StatsFor(byCustomer, c.ID)}
				break
			}
		}
	}
	return v
}

func withoutTransaction(txs []core.Transaction, id string) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
