package finance

import (
	"fmt"
	"strings"

	"custfin/internal/core"
)

// Tab partitions the roster by finance completion.
type Tab string

const (
	TabActive    Tab = "active"
	TabCompleted Tab = "completed"
)

// All selects every team or member.
const All = "all"

// ParseTab accepts "active", "completed" and empty (active).
func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TabActive, nil
	case TabActive, TabCompleted:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown tab %q", core.ErrValidation, s)
	}
}

// TabOf returns the tab a customer is listed under.
func TabOf(c core.Customer) Tab {
	if c.IsCompleted() {
		return TabCompleted
	}
	return TabActive
}

// Filters is the active filter state of the overview.
type Filters struct {
	Tab    Tab
	Search string
	Team   string
	Member string
}

// DefaultFilters returns the initial filters for an actor. Managers start on
// their own team; everyone else starts unscoped.
func DefaultFilters(actor core.Actor) Filters {
	f := Filters{Tab: TabActive, Team: All, Member: All}
	if actor.IsMod() && actor.ID != "" {
		f.Team = actor.ID
	}
	return f
}

// Row is a customer paired with its statistics.
type Row struct {
	Customer core.Customer
	Stats    Stats
}

// FilterCustomers applies the tab, search, team and member filters in that
// order. Input order is preserved and each surviving customer is paired with
// its stats, zero when it has none.
func FilterCustomers(customers []core.Customer, byCustomer map[string]Stats, dir Directory, f Filters) []Row {
	tab := f.Tab
	if tab == "" {
		tab = TabActive
	}
	match := core.NewMatcher(f.Search)

	var scope map[string]struct{}
	if !isAll(f.Team) {
		scope = dir.TeamScope(f.Team)
	}

	rows := make([]Row, 0, len(customers))
	for _, c := range customers {
		if TabOf(c) != tab {
			continue
		}
		if !match.Match(c.Name, c.Phone, c.Interest) {
			continue
		}
		if scope != nil {
			if _, ok := scope[c.CreatorID]; !ok {
				continue
			}
		}
		if !isAll(f.Member) && c.CreatorID != f.Member {
			continue
		}
		rows = append(rows, Row{Customer: c, Stats: StatsFor(byCustomer, c.ID)})
	}
	return rows
}

// Summarize totals the stats of the listed rows, so the summary always equals
// what the rows show.
func Summarize(rows []Row) Stats {
	stats := make([]Stats, len(rows))
	for i, r := range rows {
		stats[i] = r.Stats
	}
	return SumStats(stats...)
}

func isAll(s string) bool {
	return s == "" || s == All
}
