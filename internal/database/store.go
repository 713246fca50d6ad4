package database

import (
	"context"
	"strings"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
)

// GoalStore persists goals keyed by (ownerID, goalID).
// Every method treats a goal owned by someone else as absent.
type GoalStore interface {
	Create(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	List(ctx context.Context, ownerID string) ([]*models.Goal, error)
	Get(ctx context.Context, ownerID, goalID string) (*models.Goal, error)
	Patch(ctx context.Context, ownerID, goalID string, patch models.GoalPatch) (*models.Goal, error)
	Delete(ctx context.Context, ownerID, goalID string) error
	// UpdateTask runs mutate on one task under the goal's write lock and stores the result when
	// mutate returns true. It reports whether the task was found and stored. mutate must not change
	// Completed, so the goal's derived completion stays valid.
	UpdateTask(ctx context.Context, ownerID, goalID, taskID string, mutate TaskMutator) (bool, error)
}

// TaskMutator edits a task in place and reports whether the edit should be stored
type TaskMutator func(task *models.Task) bool

// CalendarTokenStore persists per-owner OAuth credentials
type CalendarTokenStore interface {
	GetToken(ctx context.Context, ownerID string) (*models.CalendarToken, error)
	SaveToken(ctx context.Context, token *models.CalendarToken) error
	DeleteToken(ctx context.Context, ownerID string) error
}

// Ensure concrete types implement the interfaces
var (
	_ GoalStore          = (*GoalRepository)(nil)
	_ GoalStore          = (*MemoryGoalStore)(nil)
	_ GoalStore          = (*CachedGoalStore)(nil)
	_ CalendarTokenStore = (*CalendarTokenRepository)(nil)
	_ CalendarTokenStore = (*MemoryCalendarTokenStore)(nil)
)

func validateNewGoal(op string, goal *models.Goal) error {
	switch {
	case goal == nil:
		return apperr.Validation(op, "goal is required")
	case strings.TrimSpace(goal.ID) == "":
		return apperr.Validation(op, "id is required")
	case strings.TrimSpace(goal.OwnerID) == "":
		return apperr.Validation(op, "owner is required")
	case strings.TrimSpace(goal.Title) == "":
		return apperr.Validation(op, "title is required")
	case len(goal.Tasks) == 0:
		return apperr.Validation(op, "at least one task is required")
	}
	return nil
}
