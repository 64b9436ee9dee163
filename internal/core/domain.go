package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

const (
	MealChicken MealType = "CHICKEN"
	MealVeg     MealType = "VEG"
	MealNone    MealType = "NONE"
)

type (
	MealType string

	TeamMember struct {
		ID         string      `json:"id"`
		EmployeeID string      `json:"employeeId"`
		Name       string      `json:"name"`
		CreatedAt  time.Time   `json:"createdAt"`
		UpdatedAt  time.Time   `json:"updatedAt"`
		Meals      []MealEntry `json:"meals"`
	}

	MealEntry struct {
		ID           string    `json:"id"`
		TeamMemberID string    `json:"teamMemberId"`
		Date         string    `json:"date"` // YYYY-MM-DD
		Type         MealType  `json:"type"`
		Cost         int64     `json:"cost"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// MealWithMember is a meal entry joined with the member that owns it.
	MealWithMember struct {
		MealEntry
		TeamMember TeamMember `json:"teamMember"`
	}
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
)

// prices is the canonical cost of each meal type.
var prices = map[MealType]int64{
	MealChicken: 220,
	MealVeg:     120,
	MealNone:    0,
}

// PriceFor returns the canonical cost for t.
func PriceFor(t MealType) (int64, error) {
	cost, ok := prices[t]
	if !ok {
		return 0, fmt.Errorf("%w: unknown meal type %q", ErrInvalidInput, t)
	}
	return cost, nil
}

// Valid reports whether t is one of the known meal types.
func (t MealType) Valid() bool {
	_, ok := prices[t]
	return ok
}

// ParseMealType normalizes a caller supplied type. An empty value, or the
// literal "null", clears the selection and yields MealNone.
func ParseMealType(s string) (MealType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "NULL" {
		return MealNone, nil
	}
	t := MealType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown meal type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// ParseDate parses a strict YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeMember trims the member fields and rejects empty values.
func NormalizeMember(employeeID, name string) (string, string, error) {
	employeeID = strings.TrimSpace(employeeID)
	name = strings.TrimSpace(name)
	if employeeID == "" {
		return "", "", fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return employeeID, name, nil
}

// Validate checks the fields every meal write must carry.
func (e MealEntry) Validate() error {
	if strings.TrimSpace(e.TeamMemberID) == "" {
		return fmt.Errorf("%w: team member id is required", ErrInvalidInput)
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown meal type %q", ErrInvalidInput, e.Type)
	}
	if e.Cost < 0 {
		return fmt.Errorf("%w: cost cannot be negative", ErrInvalidInput)
	}
	return nil
}

// MealKey is the composite identity of a meal entry.
func MealKey(teamMemberID, date string) string {
	return teamMemberID + "|" + date
}
