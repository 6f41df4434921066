package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"custfin/internal/finance"
	"custfin/internal/sheets"
)

// Journal keeps journal lines and the last exported overview in memory. It
// stands in for the spreadsheet when none is configured.
type Journal struct {
	mu       sync.Mutex
	entries  []sheets.JournalEntry
	rows     []finance.Row
	summary  finance.Stats
	exported int
}

var (
	_ sheets.JournalWriter    = (*Journal)(nil)
	_ sheets.OverviewExporter = (*Journal)(nil)
)

func New() *Journal {
	return &Journal{}
}

// AppendJournal stores the entry and returns a synthetic row reference.
func (j *Journal) AppendJournal(_ context.Context, e sheets.JournalEntry) (string, error) {
	if strings.TrimSpace(e.Event) == "" {
		return "", errors.New("journal entry without event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return fmt.Sprintf("mem:%d", len(j.entries)), nil
}

func (j *Journal) ExportOverview(_ context.Context, rows []finance.Row, summary finance.Stats) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append([]finance.Row(nil), rows...)
	j.summary = summary
	j.exported++
	return nil
}

func (j *Journal) Entries() []sheets.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]sheets.JournalEntry(nil), j.entries...)
}

// Overview returns the last exported overview and how many exports happened.
func (j *Journal) Overview() ([]finance.Row, finance.Stats, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]finance.Row(nil), j.rows...), j.summary, j.exported
}
