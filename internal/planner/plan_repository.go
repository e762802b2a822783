package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPlanNotFound is returned when a saved plan does not exist for the user.
var ErrPlanNotFound = errors.New("saved plan not found")

// SavedPlan is a named snapshot of a meal plan owned by a user.
type SavedPlan struct {
	ID        string    `json:"planId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Plan      *MealPlan `json:"mealPlan"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoadedPlan is the user's active plan with its selected day.
type LoadedPlan struct {
	SavedPlan
	SelectedDay int `json:"selectedDay"`
}

// PlanSummary is a list entry without the plan body.
type PlanSummary struct {
	ID        string    `json:"planId"`
	Name      string    `json:"name"`
	DayCount  int       `json:"dayCount"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlanRepository is a database-backed repository for saved meal plans.
// Each user has at most one active plan.
type PlanRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(d *sql.DB) *PlanRepository {
	return &PlanRepository{db: d, now: time.Now}
}

// Save stores plan under name and returns the new plan id.
func (r *PlanRepository) Save(ctx context.Context, userID, name string, plan *MealPlan) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("plan name must not be empty")
	}
	if plan == nil || len(plan.Days) == 0 {
		return "", fmt.Errorf("plan must have at least one day")
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meal plan: %w", err)
	}

	id := uuid.New().String()
	ts := r.now().UnixMilli()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO saved_plans (id, user_id, name, plan_data, day_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, name, string(data), len(plan.Days), ts, ts)
	if err != nil {
		return "", fmt.Errorf("failed to insert saved plan: %w", err)
	}
	return id, nil
}

// Get returns a saved plan without changing the active plan.
func (r *PlanRepository) Get(ctx context.Context, userID, planID string) (*SavedPlan, error) {
	return getPlan(ctx, r.db, userID, planID)
}

// Load marks planID as the user's active plan. The previously selected day
// is kept when it exists in the loaded plan, otherwise it resets to day 1.
func (r *PlanRepository) Load(ctx context.Context, userID, planID string) (*LoadedPlan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved, err := getPlan(ctx, tx, userID, planID)
	if err != nil {
		return nil, err
	}

	selected := 1
	err = tx.QueryRowContext(ctx, `SELECT selected_day FROM active_plans WHERE user_id = ?`, userID).Scan(&selected)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read active plan: %w", err)
	}
	selected = ClampDay(selected, saved.Plan)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_plans (user_id, plan_id, selected_day) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET plan_id = excluded.plan_id, selected_day = excluded.selected_day`,
		userID, planID, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to set active plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit active plan: %w", err)
	}
	return &LoadedPlan{SavedPlan: *saved, SelectedDay: selected}, nil
}

// Active returns the user's active plan, or ErrPlanNotFound.
func (r *PlanRepository) Active(ctx context.Context, userID string) (*LoadedPlan, error) {
	var (
		planID   sql.NullString
		selected int
	)
	err := r.db.QueryRowContext(ctx, `SELECT plan_id, selected_day FROM active_plans WHERE user_id = ?`, userID).Scan(&planID, &selected)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !planID.Valid) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active plan: %w", err)
	}

	saved, err := getPlan(ctx, r.db, userID, planID.String)
	if err != nil {
		return nil, err
	}
	return &LoadedPlan{SavedPlan: *saved, SelectedDay: ClampDay(selected, saved.Plan)}, nil
}

// SelectDay changes the selected day of the active plan and returns the
// stored value, which is 1 when day is out of range.
func (r *PlanRepository) SelectDay(ctx context.Context, userID string, day int) (int, error) {
	active, err := r.Active(ctx, userID)
	if err != nil {
		return 0, err
	}
	day = ClampDay(day, active.Plan)
	if _, err := r.db.ExecContext(ctx, `UPDATE active_plans SET selected_day = ? WHERE user_id = ?`, day, userID); err != nil {
		return 0, fmt.Errorf("failed to select day: %w", err)
	}
	return day, nil
}

// Rename changes a saved plan's name.
func (r *PlanRepository) Rename(ctx context.Context, userID, planID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("plan name must not be empty")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE saved_plans SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		name, r.now().UnixMilli(), planID, userID)
	if err != nil {
		return fmt.Errorf("failed to rename plan: %w", err)
	}
	return requireRow(res)
}

// Delete removes a saved plan and its shopping list. Deleting the active
// plan leaves the user without one.
func (r *PlanRepository) Delete(ctx context.Context, userID, planID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_lists WHERE plan_id = ? AND user_id = ?`, planID, userID); err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM saved_plans WHERE id = ? AND user_id = ?`, planID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE active_plans SET plan_id = NULL, selected_day = 1 WHERE user_id = ? AND plan_id = ?`, userID, planID); err != nil {
		return fmt.Errorf("failed to clear active plan: %w", err)
	}
	return tx.Commit()
}

// List returns the user's saved plans, most recently updated first.
func (r *PlanRepository) List(ctx context.Context, userID string) ([]PlanSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.day_count, p.created_at, p.updated_at, COALESCE(a.plan_id = p.id, 0)
		FROM saved_plans p
		LEFT JOIN active_plans a ON a.user_id = p.user_id
		WHERE p.user_id = ?
		ORDER BY p.updated_at DESC, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []PlanSummary
	for rows.Next() {
		var (
			s                PlanSummary
			created, updated int64
			active           bool
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.DayCount, &created, &updated, &active); err != nil {
			return nil, fmt.Errorf("failed to scan saved plan: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		s.UpdatedAt = time.UnixMilli(updated).UTC()
		s.Active = active
		plans = append(plans, s)
	}
	return plans, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPlan(ctx context.Context, q queryer, userID, planID string) (*SavedPlan, error) {
	var (
		s                SavedPlan
		data             string
		created, updated int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, name, plan_data, created_at, updated_at FROM saved_plans WHERE id = ? AND user_id = ?`,
		planID, userID).Scan(&s.ID, &s.UserID, &s.Name, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved plan: %w", err)
	}

	s.Plan = &MealPlan{}
	if err := json.Unmarshal([]byte(data), s.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saved plan: %w", err)
	}
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.UpdatedAt = time.UnixMilli(updated).UTC()
	return &s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrPlanNotFound
	}
	return nil
}
