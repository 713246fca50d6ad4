package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
	"github.com/lib/pq"
)

const goalColumns = `id, owner_id, title, description, tasks, completed, reflection, created_at`

// pqUniqueViolation is the SQLSTATE for duplicate keys
const pqUniqueViolation = "23505"

// GoalRepository handles goal database operations
type GoalRepository struct {
	db *DB
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db *DB) *GoalRepository {
	return &GoalRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	goal := &models.Goal{}
	var tasksJSON, reflectionJSON []byte

	if err := row.Scan(
		&goal.ID,
		&goal.OwnerID,
		&goal.Title,
		&goal.Description,
		&tasksJSON,
		&goal.Completed,
		&reflectionJSON,
		&goal.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tasksJSON, &goal.Tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}
	if goal.Tasks == nil {
		goal.Tasks = []models.Task{}
	}
	if len(reflectionJSON) > 0 && string(reflectionJSON) != "null" {
		goal.Reflection = &models.Reflection{}
		if err := json.Unmarshal(reflectionJSON, goal.Reflection); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reflection: %w", err)
		}
	}
	return goal, nil
}

// marshalGoalDocument encodes the JSONB columns as text; lib/pq would send []byte as bytea.
// A missing reflection is written as NULL.
func marshalGoalDocument(goal *models.Goal) (tasks string, reflection any, err error) {
	tasksJSON, err := json.Marshal(goal.Tasks)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}
	if goal.Reflection != nil {
		reflectionJSON, err := json.Marshal(goal.Reflection)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal reflection: %w", err)
		}
		reflection = string(reflectionJSON)
	}
	return string(tasksJSON), reflection, nil
}

// Create inserts a new goal
func (r *GoalRepository) Create(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	const op = "database.CreateGoal"
	if err := validateNewGoal(op, goal); err != nil {
		return nil, err
	}

	stored := goal.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	tasksJSON, reflectionJSON, err := marshalGoalDocument(stored)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}

	query := `
		INSERT INTO goals (id, owner_id, title, description, tasks, completed, reflection, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		stored.ID,
		stored.OwnerID,
		stored.Title,
		stored.Description,
		tasksJSON,
		stored.Completed,
		reflectionJSON,
		stored.CreatedAt,
		time.Now().UTC(),
	).Scan(&stored.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, apperr.Validation(op, "goal %s already exists", stored.ID)
		}
		return nil, apperr.Persistence(op, fmt.Errorf("failed to create goal: %w", err))
	}

	return stored, nil
}

// List returns the owner's goals, newest first
func (r *GoalRepository) List(ctx context.Context, ownerID string) ([]*models.Goal, error) {
	const op = "database.ListGoals"
	query := `SELECT ` + goalColumns + ` FROM goals WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to list goals: %w", err))
	}
	defer func() { _ = rows.Close() }()

	goals := []*models.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, apperr.Persistence(op, fmt.Errorf("failed to scan goal: %w", err))
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to iterate goals: %w", err))
	}

	return goals, nil
}

// Get retrieves one goal
func (r *GoalRepository) Get(ctx context.Context, ownerID, goalID string) (*models.Goal, error) {
	const op = "database.GetGoal"
	query := `SELECT ` + goalColumns + ` FROM goals WHERE owner_id = $1 AND id = $2`

	goal, err := scanGoal(r.db.QueryRowContext(ctx, query, ownerID, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "goal %s not found", goalID)
	}
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to get goal: %w", err))
	}
	return goal, nil
}

// Patch applies the provided fields inside a transaction holding a row lock
func (r *GoalRepository) Patch(ctx context.Context, ownerID, goalID string, patch models.GoalPatch) (*models.Goal, error) {
	const op = "database.PatchGoal"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + goalColumns + ` FROM goals WHERE owner_id = $1 AND id = $2 FOR UPDATE`
	goal, err := scanGoal(tx.QueryRowContext(ctx, query, ownerID, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "goal %s not found", goalID)
	}
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to load goal for update: %w", err))
	}

	patch.ApplyTo(goal)

	tasksJSON, reflectionJSON, err := marshalGoalDocument(goal)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}

	update := `
		UPDATE goals
		SET title = $1, description = $2, tasks = $3, completed = $4, reflection = $5, updated_at = $6
		WHERE owner_id = $7 AND id = $8
	`
	if _, err := tx.ExecContext(ctx, update,
		goal.Title,
		goal.Description,
		tasksJSON,
		goal.Completed,
		reflectionJSON,
		time.Now().UTC(),
		ownerID,
		goalID,
	); err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to update goal: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to commit goal update: %w", err))
	}

	return goal, nil
}

// UpdateTask edits one task inside the same row-locked transaction Patch uses, so a concurrent
// write to the goal is never overwritten with a stale task list
func (r *GoalRepository) UpdateTask(ctx context.Context, ownerID, goalID, taskID string, mutate TaskMutator) (bool, error) {
	const op = "database.UpdateTask"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Persistence(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + goalColumns + ` FROM goals WHERE owner_id = $1 AND id = $2 FOR UPDATE`
	goal, err := scanGoal(tx.QueryRowContext(ctx, query, ownerID, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound(op, "goal %s not found", goalID)
	}
	if err != nil {
		return false, apperr.Persistence(op, fmt.Errorf("failed to load goal for update: %w", err))
	}

	idx := goal.TaskIndex(taskID)
	if idx < 0 || !mutate(&goal.Tasks[idx]) {
		return false, nil
	}

	tasksJSON, _, err := marshalGoalDocument(goal)
	if err != nil {
		return false, apperr.Persistence(op, err)
	}
	update := `UPDATE goals SET tasks = $1, updated_at = $2 WHERE owner_id = $3 AND id = $4`
	if _, err := tx.ExecContext(ctx, update, tasksJSON, time.Now().UTC(), ownerID, goalID); err != nil {
		return false, apperr.Persistence(op, fmt.Errorf("failed to update task: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return false, apperr.Persistence(op, fmt.Errorf("failed to commit task update: %w", err))
	}
	return true, nil
}

// Delete removes a goal
func (r *GoalRepository) Delete(ctx context.Context, ownerID, goalID string) error {
	const op = "database.DeleteGoal"

	result, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE owner_id = $1 AND id = $2`, ownerID, goalID)
	if err != nil {
		return apperr.Persistence(op, fmt.Errorf("failed to delete goal: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.Persistence(op, fmt.Errorf("failed to read affected rows: %w", err))
	}
	if affected == 0 {
		return apperr.NotFound(op, "goal %s not found", goalID)
	}
	return nil
}
