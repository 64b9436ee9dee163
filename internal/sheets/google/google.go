// Package google mirrors meal entries to a Google Sheets ledger. Rows are
// keyed by meal id in column A and carry the owning member id in column G.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"mealtracker/internal/log"
	ports "mealtracker/internal/sheets"
)

const defaultIndexTTL = 5 * time.Minute

var _ ports.LedgerWriter = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// Row index cache: meal id -> 1-based row number.
	mu                 sync.Mutex
	rowIndex           map[string]int
	nextRow            int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// New creates a Sheets client for the ledger tab sheetName. Credentials come
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Meals"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultIndexTTL,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account", log.FieldComponent, log.ComponentSheets,
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func (c *Client) UpsertRows(ctx context.Context, rows []ports.LedgerRow) error {
	if len(rows) == 0 {
		return nil
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	index, next, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}

	updates, appends := planUpsert(c.sheetName, index, rows)
	if next == 1 {
		appends = append([][]any{ports.Header}, appends...)
	}

	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			c.invalidateRowCache()
			return fmt.Errorf("update ledger rows in %s: %w", c.sheetName, err)
		}
	}

	if len(appends) > 0 {
		rng := fmt.Sprintf("%s!A:G", c.sheetName)
		vr := &gsheet.ValueRange{Values: appends}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		// Appended row numbers are not known locally; the next call rereads.
		c.invalidateRowCache()
		if err != nil {
			return fmt.Errorf("append ledger rows to %s: %w", c.sheetName, err)
		}
	}

	slog.DebugContext(ctx, "Ledger rows written", log.FieldComponent, log.ComponentSheets, "sheet", c.sheetName, "updated", len(updates), "appended", len(appends))
	return nil
}

func (c *Client) DeleteMemberRows(ctx context.Context, teamMemberID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!G:G", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	ranges := clearRanges(c.sheetName, rowsMatching(resp.Values, teamMemberID))
	if len(ranges) == 0 {
		return nil
	}
	req := &gsheet.BatchClearValuesRequest{Ranges: ranges}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear rows of member %s: %w", teamMemberID, err)
	}
	c.invalidateRowCache()

	slog.InfoContext(ctx, "Ledger rows cleared", log.FieldComponent, log.ComponentSheets, "team_member_id", teamMemberID, "rows", len(ranges))
	return nil
}

// loadIndex returns the cached meal id index, rereading column A when stale.
func (c *Client) loadIndex(ctx context.Context) (map[string]int, int, error) {
	c.mu.Lock()
	if c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt) {
		index, next := c.rowIndex, c.nextRow
		c.mu.Unlock()
		return index, next, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	index := indexRows(resp.Values)

	c.mu.Lock()
	c.rowIndex = index
	c.nextRow = len(resp.Values) + 1
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	next := c.nextRow
	c.mu.Unlock()
	return index, next, nil
}

func (c *Client) invalidateRowCache() {
	c.mu.Lock()
	c.rowIndex = nil
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

// indexRows maps the first cell of each row to its 1-based row number.
func indexRows(values [][]any) map[string]int {
	index := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" {
			continue
		}
		index[id] = i + 1
	}
	return index
}

// rowsMatching returns the 1-based rows whose first cell equals id.
func rowsMatching(values [][]any, id string) []int {
	var rows []int
	for i, row := range values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == id {
			rows = append(rows, i+1)
		}
	}
	return rows
}

func clearRanges(sheet string, rows []int) []string {
	out := make([]string, 0, len(rows))
	for _, n := range rows {
		out = append(out, fmt.Sprintf("%s!A%d:G%d", sheet, n, n))
	}
	return out
}

// planUpsert splits rows into in-place updates for known meal ids and values
// to append. A meal id repeated within rows keeps its last occurrence.
func planUpsert(sheet string, index map[string]int, rows []ports.LedgerRow) ([]*gsheet.ValueRange, [][]any) {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[r.MealID] = i
	}

	var updates []*gsheet.ValueRange
	var appends [][]any
	for i, r := range rows {
		if last[r.MealID] != i {
			continue
		}
		if n, ok := index[r.MealID]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:G%d", sheet, n, n),
				Values: [][]any{r.Values()},
			})
			continue
		}
		appends = append(appends, r.Values())
	}
	return updates, appends
}
