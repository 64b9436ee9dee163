package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mealtracker/internal/core"
	"mealtracker/internal/log"
	"mealtracker/internal/store"
)

var _ store.Store = (*SQLiteRepository)(nil)

// timeLayout keeps a fixed-width fraction so stored timestamps sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// DSN returns the connection string used for dbPath. Foreign keys are
// enabled per connection, cascade deletes depend on it.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := DSN(dbPath)

	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps upserts and cascades serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn in a transaction. With one open connection fn must only use tx.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTeamMembers(ctx context.Context) ([]core.TeamMember, error) {
	var members []core.TeamMember
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, employee_id, name, created_at, updated_at FROM team_members ORDER BY created_at, id`)
		if err != nil {
			return fmt.Errorf("list team members: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				return err
			}
			members = append(members, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list team members: %w", err)
		}

		byMember, err := mealsByMember(ctx, tx, "")
		if err != nil {
			return err
		}
		for i := range members {
			members[i].Meals = orEmpty(byMember[members[i].ID])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []core.TeamMember{}
	}
	return members, nil
}

func (r *SQLiteRepository) GetTeamMember(ctx context.Context, id string) (core.TeamMember, error) {
	var m core.TeamMember
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = getMember(ctx, tx, id)
		if err != nil {
			return err
		}
		byMember, err := mealsByMember(ctx, tx, id)
		if err != nil {
			return err
		}
		m.Meals = orEmpty(byMember[id])
		return nil
	})
	return m, err
}

func (r *SQLiteRepository) CreateTeamMember(ctx context.Context, employeeID, name string) (core.TeamMember, error) {
	employeeID, name, err := core.NormalizeMember(employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	now := r.now()
	m := core.TeamMember{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
		Meals:      []core.MealEntry{},
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO team_members (id, employee_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.EmployeeID, m.Name, formatTime(now), formatTime(now))
	if err != nil {
		return core.TeamMember{}, mapError(fmt.Sprintf("create team member %s", employeeID), err)
	}

	slog.InfoContext(ctx, "Team member saved to SQLite", log.FieldComponent, log.ComponentStorage, "id", m.ID, "employee_id", m.EmployeeID)
	return m, nil
}

func (r *SQLiteRepository) UpdateTeamMember(ctx context.Context, id, employeeID, name string) (core.TeamMember, error) {
	employeeID, name, err := core.NormalizeMember(employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	var m core.TeamMember
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE team_members SET employee_id = ?, name = ?, updated_at = ? WHERE id = ?`,
			employeeID, name, formatTime(r.now()), id)
		if err != nil {
			return mapError(fmt.Sprintf("update team member %s", id), err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
		}
		m, err = getMember(ctx, tx, id)
		if err != nil {
			return err
		}
		byMember, err := mealsByMember(ctx, tx, id)
		if err != nil {
			return err
		}
		m.Meals = orEmpty(byMember[id])
		return nil
	})
	return m, err
}

func (r *SQLiteRepository) DeleteTeamMember(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete team member %s", id), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Team member deleted from SQLite", log.FieldComponent, log.ComponentStorage, "id", id)
	return nil
}

func (r *SQLiteRepository) UpsertMealEntry(ctx context.Context, teamMemberID, date string, t core.MealType, cost int64) (core.MealEntry, error) {
	entry := core.MealEntry{TeamMemberID: teamMemberID, Date: date, Type: t, Cost: cost}
	if err := entry.Validate(); err != nil {
		return core.MealEntry{}, err
	}
	now := formatTime(r.now())
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO meal_entries (id, team_member_id, date, type, cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_member_id, date) DO UPDATE SET
			type = excluded.type,
			cost = excluded.cost,
			updated_at = excluded.updated_at
		RETURNING id, team_member_id, date, type, cost, created_at, updated_at`,
		uuid.NewString(), teamMemberID, date, string(t), cost, now, now)

	e, err := scanMeal(row)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return core.MealEntry{}, fmt.Errorf("team member %s: %w", teamMemberID, core.ErrNotFound)
		}
		return core.MealEntry{}, mapError(fmt.Sprintf("upsert meal %s on %s", teamMemberID, date), err)
	}

	slog.DebugContext(ctx, "Meal entry upserted", log.FieldComponent, log.ComponentStorage, "id", e.ID, "team_member_id", teamMemberID, "date", date, "meal_type", string(t))
	return e, nil
}

func (r *SQLiteRepository) GetMealEntry(ctx context.Context, teamMemberID, date string) (core.MealEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, team_member_id, date, type, cost, created_at, updated_at
		 FROM meal_entries WHERE team_member_id = ? AND date = ?`, teamMemberID, date)
	e, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MealEntry{}, fmt.Errorf("meal entry %s on %s: %w", teamMemberID, date, core.ErrNotFound)
	}
	if err != nil {
		return core.MealEntry{}, fmt.Errorf("get meal entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetMealsForDate(ctx context.Context, date string) ([]core.MealWithMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.team_member_id, e.date, e.type, e.cost, e.created_at, e.updated_at,
		       m.id, m.employee_id, m.name, m.created_at, m.updated_at
		FROM meal_entries e
		JOIN team_members m ON m.id = e.team_member_id
		WHERE e.date = ?
		ORDER BY m.created_at, m.id`, date)
	if err != nil {
		return nil, fmt.Errorf("get meals for date %s: %w", date, err)
	}
	defer rows.Close()

	var out []core.MealWithMember
	for rows.Next() {
		var (
			mw                 core.MealWithMember
			mealType           string
			eCreated, eUpdated string
			mCreated, mUpdated string
		)
		if err := rows.Scan(
			&mw.MealEntry.ID, &mw.MealEntry.TeamMemberID, &mw.MealEntry.Date, &mealType, &mw.MealEntry.Cost, &eCreated, &eUpdated,
			&mw.TeamMember.ID, &mw.TeamMember.EmployeeID, &mw.TeamMember.Name, &mCreated, &mUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan meal with member: %w", err)
		}
		mw.MealEntry.Type = core.MealType(mealType)
		mw.MealEntry.CreatedAt = parseTime(eCreated)
		mw.MealEntry.UpdatedAt = parseTime(eUpdated)
		mw.TeamMember.CreatedAt = parseTime(mCreated)
		mw.TeamMember.UpdatedAt = parseTime(mUpdated)
		out = append(out, mw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get meals for date %s: %w", date, err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListMealsInRange(ctx context.Context, from, to string) ([]core.MealEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, team_member_id, date, type, cost, created_at, updated_at
		 FROM meal_entries WHERE date >= ? AND date <= ?
		 ORDER BY date, team_member_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list meals in range: %w", err)
	}
	defer rows.Close()

	var out []core.MealEntry
	for rows.Next() {
		e, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meals in range: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(s scanner) (core.TeamMember, error) {
	var (
		m                core.TeamMember
		created, updated string
	)
	if err := s.Scan(&m.ID, &m.EmployeeID, &m.Name, &created, &updated); err != nil {
		return core.TeamMember{}, err
	}
	m.CreatedAt = parseTime(created)
	m.UpdatedAt = parseTime(updated)
	return m, nil
}

func scanMeal(s scanner) (core.MealEntry, error) {
	var (
		e                core.MealEntry
		mealType         string
		created, updated string
	)
	if err := s.Scan(&e.ID, &e.TeamMemberID, &e.Date, &mealType, &e.Cost, &created, &updated); err != nil {
		return core.MealEntry{}, err
	}
	e.Type = core.MealType(mealType)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func getMember(ctx context.Context, tx *sql.Tx, id string) (core.TeamMember, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, employee_id, name, created_at, updated_at FROM team_members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TeamMember{}, fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.TeamMember{}, fmt.Errorf("get team member: %w", err)
	}
	return m, nil
}

// mealsByMember loads meals newest first, grouped by member. An empty
// memberID loads every member's meals.
func mealsByMember(ctx context.Context, tx *sql.Tx, memberID string) (map[string][]core.MealEntry, error) {
	query := `SELECT id, team_member_id, date, type, cost, created_at, updated_at FROM meal_entries`
	var args []any
	if memberID != "" {
		query += ` WHERE team_member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY date DESC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load meals: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]core.MealEntry)
	for rows.Next() {
		e, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		out[e.TeamMemberID] = append(out[e.TeamMemberID], e)
	}
	return out, rows.Err()
}

func orEmpty(meals []core.MealEntry) []core.MealEntry {
	if meals == nil {
		return []core.MealEntry{}
	}
	return meals
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isConstraint(err error, code int) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == code
}

// mapError translates SQLite constraint failures into domain errors.
func mapError(op string, err error) error {
	switch {
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE),
		isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY):
		return fmt.Errorf("%s: %w", op, core.ErrDuplicateKey)
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_CHECK):
		return fmt.Errorf("%s: %w", op, core.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
