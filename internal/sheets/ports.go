// Package sheets declares the outbound port for mirroring meal entries to a
// spreadsheet ledger.
package sheets

import (
	"context"
	"strconv"

	"mealtracker/internal/core"
)

// LedgerRow is one meal entry as laid out in the ledger sheet.
type LedgerRow struct {
	MealID       string
	Date         string
	EmployeeID   string
	Name         string
	Type         core.MealType
	Cost         int64
	TeamMemberID string
}

// Header is the first row of an empty ledger sheet.
var Header = []any{"Meal ID", "Date", "Employee ID", "Name", "Type", "Cost", "Team Member ID"}

func RowFor(e core.MealEntry, m core.TeamMember) LedgerRow {
	return LedgerRow{
		MealID:       e.ID,
		Date:         e.Date,
		EmployeeID:   m.EmployeeID,
		Name:         m.Name,
		Type:         e.Type,
		Cost:         e.Cost,
		TeamMemberID: m.ID,
	}
}

// Values renders r in column order A..G.
func (r LedgerRow) Values() []any {
	return []any{r.MealID, r.Date, r.EmployeeID, r.Name, string(r.Type), strconv.FormatInt(r.Cost, 10), r.TeamMemberID}
}

type LedgerWriter interface {
	// UpsertRows writes each row over the existing row with the same meal
	// id, or appends it.
	UpsertRows(ctx context.Context, rows []LedgerRow) error
	// DeleteMemberRows clears every row that belongs to teamMemberID.
	DeleteMemberRows(ctx context.Context, teamMemberID string) error
}
