package sheets

import (
	"context"
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
)

// JournalEntry is one line of the finance journal: a recorded, deleted or
// compensated movement, or a customer whose follow-up was closed.
type JournalEntry struct {
	At            time.Time
	Event         string
	CustomerID    string
	CustomerName  string
	TransactionID string
	Kind          core.TransactionKind
	Amount        core.Money
	Reason        string
	Date          string
	ActorID       string
}

// Ports for outbound adapters.
type (
	JournalWriter interface {
		AppendJournal(ctx context.Context, e JournalEntry) (rowRef string, err error)
	}

	// OverviewExporter replaces the exported overview with rows and their summary.
	OverviewExporter interface {
		ExportOverview(ctx context.Context, rows []finance.Row, summary finance.Stats) error
	}
)
