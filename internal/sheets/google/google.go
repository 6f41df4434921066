package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"custfin/internal/finance"
	ports "custfin/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	journalSheet  string
	overviewSheet string
	loc           *time.Location
}

// Ensure interface conformance
var (
	_ ports.JournalWriter    = (*Client)(nil)
	_ ports.OverviewExporter = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables and a
// service account.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: GOOGLE_JOURNAL_SHEET (default "Finance Journal",
// prefixed with the current year), GOOGLE_OVERVIEW_SHEET (default "Finance Overview").
func NewFromEnv(ctx context.Context, loc *time.Location) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	journalBase := strings.TrimSpace(os.Getenv("GOOGLE_JOURNAL_SHEET"))
	if journalBase == "" {
		journalBase = "Finance Journal"
	}
	overview := strings.TrimSpace(os.Getenv("GOOGLE_OVERVIEW_SHEET"))
	if overview == "" {
		overview = "Finance Overview"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		journalSheet:  yearPrefixedName(journalBase, time.Now().In(loc).Year()),
		overviewSheet: overview,
		loc:           loc,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// AppendJournal appends one journal line below the last used row.
func (c *Client) AppendJournal(ctx context.Context, e ports.JournalEntry) (string, error) {
	if strings.TrimSpace(e.Event) == "" {
		return "", errors.New("journal entry without event")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:I", c.journalSheet)
	vr := &gsheet.ValueRange{Values: [][]any{journalRow(e, c.loc)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.journalSheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// ExportOverview clears the overview sheet and writes the header, one line per
// row and a closing total line.
func (c *Client) ExportOverview(ctx context.Context, rows []finance.Row, summary finance.Stats) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:H", c.overviewSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.overviewSheet, err)
	}

	values := overviewValues(rows, summary)
	rng := fmt.Sprintf("%s!A1:H%d", c.overviewSheet, len(values))
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %s: %w", c.overviewSheet, err)
	}
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
