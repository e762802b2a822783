package shopping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository handles persistence of shopping lists for saved plans.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new shopping list repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Save stores list for a saved plan, replacing any previous list.
func (r *Repository) Save(ctx context.Context, userID, planID string, list ShoppingList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal shopping list: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (plan_id, user_id, list_data, total_cost, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(plan_id) DO UPDATE SET list_data = excluded.list_data, total_cost = excluded.total_cost, created_at = excluded.created_at`,
		planID, userID, string(data), list.TotalCost, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert shopping list: %w", err)
	}
	return nil
}

// GetByPlanID retrieves the shopping list of a saved plan. It returns nil
// when the plan has none.
func (r *Repository) GetByPlanID(ctx context.Context, userID, planID string) (*SavedList, error) {
	var (
		data    string
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT list_data, created_at FROM shopping_lists WHERE plan_id = ? AND user_id = ?`,
		planID, userID).Scan(&data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No shopping list found
		}
		return nil, fmt.Errorf("failed to get shopping list by plan ID: %w", err)
	}

	saved := &SavedList{PlanID: planID, UserID: userID, CreatedAt: time.UnixMilli(created).UTC()}
	if err := json.Unmarshal([]byte(data), &saved.List); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shopping list: %w", err)
	}
	return saved, nil
}

// DeleteByPlanID deletes a saved plan's shopping list.
func (r *Repository) DeleteByPlanID(ctx context.Context, userID, planID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE plan_id = ? AND user_id = ?`, planID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	return nil
}
