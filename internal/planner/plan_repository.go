package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StoredPlan is a plan saved for a user.
type StoredPlan struct {
	ID        int64
	UserID    string
	PlanID    string
	PlanData  []byte // Raw JSON of the MealPlanResponse
	CreatedAt time.Time
}

// Decode unmarshals the stored body.
func (s StoredPlan) Decode() (*MealPlanResponse, error) {
	var resp MealPlanResponse
	if err := json.Unmarshal(s.PlanData, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored plan %s: %w", s.PlanID, err)
	}
	return &resp, nil
}

// PlanRepository is a database-backed history of the plans sent to each user.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(d *sql.DB) *PlanRepository {
	return &PlanRepository{db: d}
}

// Save inserts a plan for userID.
func (r *PlanRepository) Save(ctx context.Context, userID string, plan *MealPlanResponse) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode meal plan: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO meal_plans (user_id, plan_id, plan_data, created_at) VALUES (?, ?, ?, ?)`,
		userID, plan.MealPlanID, data, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save meal plan for user %s: %w", userID, err)
	}
	return nil
}

// ListRecentByUserID retrieves the N most recent meal plans for a given user, newest first.
func (r *PlanRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]StoredPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, plan_id, plan_data, created_at
		 FROM meal_plans WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent meal plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []StoredPlan
	for rows.Next() {
		var p StoredPlan
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlanID, &p.PlanData, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan meal plan: %w", err)
		}
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
