package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"mealtracker/internal/core"
	ports "mealtracker/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Meals")
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCredentials_Missing(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := loadCredentials(); err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestLoadCredentials_Inline(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	got, err := loadCredentials()
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("unexpected credentials %q, err=%v", got, err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Meals"}
	ctx := context.Background()

	if err := c.UpsertRows(ctx, nil); err != nil {
		t.Fatalf("empty upsert should be a no-op, got %v", err)
	}
	if err := c.UpsertRows(ctx, []ports.LedgerRow{{MealID: "x"}}); err == nil {
		t.Fatal("expected error without a sheets service")
	}
	if err := c.DeleteMemberRows(ctx, "m1"); err == nil {
		t.Fatal("expected error without a sheets service")
	}
}

func TestIndexRows(t *testing.T) {
	values := [][]any{
		{"Meal ID"},
		{"meal-1"},
		{},
		{" meal-2 "},
		{""},
	}
	index := indexRows(values)
	if index["meal-1"] != 2 || index["meal-2"] != 4 {
		t.Fatalf("unexpected index: %v", index)
	}
	if _, ok := index[""]; ok {
		t.Fatal("blank cells must not be indexed")
	}
}

func TestRowsMatchingAndClearRanges(t *testing.T) {
	values := [][]any{{"Team Member ID"}, {"m1"}, {"m2"}, {}, {"m1"}}
	rows := rowsMatching(values, "m1")
	if len(rows) != 2 || rows[0] != 2 || rows[1] != 5 {
		t.Fatalf("unexpected rows: %v", rows)
	}
	ranges := clearRanges("Meals", rows)
	if ranges[0] != "Meals!A2:G2" || ranges[1] != "Meals!A5:G5" {
		t.Fatalf("unexpected ranges: %v", ranges)
	}
}

func TestPlanUpsert(t *testing.T) {
	member := core.TeamMember{ID: "m1", EmployeeID: "EMP001", Name: "Ahmed Khan"}
	known := ports.RowFor(core.MealEntry{ID: "meal-1", Date: "2024-01-10", Type: core.MealChicken, Cost: 220}, member)
	fresh := ports.RowFor(core.MealEntry{ID: "meal-2", Date: "2024-01-11", Type: core.MealVeg, Cost: 120}, member)
	repeat := fresh
	repeat.Type, repeat.Cost = core.MealNone, 0

	updates, appends := planUpsert("Meals", map[string]int{"meal-1": 7}, []ports.LedgerRow{known, fresh, repeat})

	if len(updates) != 1 || updates[0].Range != "Meals!A7:G7" {
		t.Fatalf("unexpected updates: %+v", updates)
	}
	if got := updates[0].Values[0]; got[4] != "CHICKEN" || got[5] != "220" || got[6] != "m1" {
		t.Fatalf("unexpected update values: %v", got)
	}
	if len(appends) != 1 || appends[0][0] != "meal-2" || appends[0][4] != "NONE" {
		t.Fatalf("the last write for a repeated meal should win: %v", appends)
	}
}

func TestRowCacheExpiration(t *testing.T) {
	c := &Client{cacheValidDuration: 50 * time.Millisecond}

	c.mu.Lock()
	c.rowIndex = map[string]int{"meal-1": 2}
	c.nextRow = 3
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	index, next, err := c.loadIndex(context.Background())
	if err != nil || index["meal-1"] != 2 || next != 3 {
		t.Fatalf("fresh cache should be served without a request: %v %d %v", index, next, err)
	}

	c.invalidateRowCache()
	c.mu.Lock()
	valid := c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if valid {
		t.Fatal("cache should be invalid after invalidateRowCache")
	}
}
