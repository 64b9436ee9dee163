//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"mealtracker/internal/core"
	ports "mealtracker/internal/sheets"
)

// Run with: go test -tags=integration ./internal/sheets/google
func TestIntegration_LedgerRoundTrip(t *testing.T) {
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"))
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	member := core.TeamMember{ID: uuid.NewString(), EmployeeID: "IT-" + uuid.NewString()[:8], Name: "Integration Test"}
	row := ports.RowFor(core.MealEntry{ID: uuid.NewString(), Date: "2024-01-10", Type: core.MealChicken, Cost: 220}, member)

	if err := client.UpsertRows(ctx, []ports.LedgerRow{row}); err != nil {
		t.Fatalf("append: %v", err)
	}
	row.Type, row.Cost = core.MealVeg, 120
	if err := client.UpsertRows(ctx, []ports.LedgerRow{row}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := client.DeleteMemberRows(ctx, member.ID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
