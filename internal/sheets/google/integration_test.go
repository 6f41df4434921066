//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
	ports "custfin/internal/sheets"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON") == "" &&
		os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE") == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account not configured, skipping integration test")
	}

	c, err := NewFromEnv(context.Background(), time.UTC)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestIntegration_JournalAppend(t *testing.T) {
	c := newIntegrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ref, err := c.AppendJournal(ctx, ports.JournalEntry{
		At:            time.Now(),
		Event:         "integration.test",
		CustomerID:    "integration",
		TransactionID: "integration",
		Kind:          core.KindExpense,
		Amount:        core.Money{Dong: 1},
		Reason:        "integration test line",
	})
	if err != nil {
		t.Fatalf("AppendJournal() error = %v", err)
	}
	t.Logf("Appended journal line at %s", ref)
}

func TestIntegration_ExportOverview(t *testing.T) {
	c := newIntegrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows := []finance.Row{{
		Customer: core.Customer{ID: "integration", Name: "Integration"},
		Stats:    finance.Stats{Income: core.Money{Dong: 10}, Balance: core.Money{Dong: 10}},
	}}
	if err := c.ExportOverview(ctx, rows, finance.Summarize(rows)); err != nil {
		t.Fatalf("ExportOverview() error = %v", err)
	}
}

func TestIntegration_ContextCancellation(t *testing.T) {
	c := newIntegrationClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.AppendJournal(ctx, ports.JournalEntry{Event: "integration.cancelled"}); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
