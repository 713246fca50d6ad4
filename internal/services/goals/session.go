package goals

import (
	"context"
	"sync"

	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/roadmap"
)

// SessionRepository is one owner's view of their goals. It caches the last successful read
// and folds in the result of each successful mutation; a failed call leaves the cache as it was.
type SessionRepository struct {
	svc     *Service
	ownerID string

	mu    sync.RWMutex
	goals []*models.Goal
}

// Session returns a repository bound to ownerID
func (s *Service) Session(ownerID string) *SessionRepository {
	return &SessionRepository{svc: s, ownerID: ownerID}
}

// OwnerID returns the owner this session is bound to
func (r *SessionRepository) OwnerID() string {
	return r.ownerID
}

// Refresh reloads the owner's goals from the store
func (r *SessionRepository) Refresh(ctx context.Context) error {
	goals, err := r.svc.ListGoals(ctx, r.ownerID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.goals = goals
	r.mu.Unlock()
	return nil
}

// Goals returns copies of the cached goals, newest first
func (r *SessionRepository) Goals() []*models.Goal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Goal, len(r.goals))
	for i, g := range r.goals {
		out[i] = g.Clone()
	}
	return out
}

// Goal returns a copy of one cached goal
func (r *SessionRepository) Goal(goalID string) (*models.Goal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.goals {
		if g.ID == goalID {
			return g.Clone(), true
		}
	}
	return nil, false
}

func (r *SessionRepository) put(goal *models.Goal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.goals {
		if g.ID == goal.ID {
			r.goals[i] = goal.Clone()
			return
		}
	}
	r.goals = append([]*models.Goal{goal.Clone()}, r.goals...)
}

func (r *SessionRepository) remove(goalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.goals {
		if g.ID == goalID {
			r.goals = append(r.goals[:i:i], r.goals[i+1:]...)
			return
		}
	}
}

func (r *SessionRepository) fold(goalID string, out *Outcome, err error) (*Outcome, error) {
	if err != nil {
		return nil, err
	}
	if out.GoalDeleted {
		r.remove(goalID)
	} else if out.Goal != nil {
		r.put(out.Goal)
	}
	return out, nil
}

// CreateGoal creates a goal and adds it to the session
func (r *SessionRepository) CreateGoal(ctx context.Context, in CreateGoalInput) (*models.Goal, error) {
	goal, err := r.svc.CreateGoal(ctx, r.ownerID, in)
	if err != nil {
		return nil, err
	}
	r.put(goal)
	return goal, nil
}

// PatchGoal edits a goal's fields
func (r *SessionRepository) PatchGoal(ctx context.Context, goalID string, in PatchGoalInput) (*models.Goal, error) {
	goal, err := r.svc.PatchGoal(ctx, r.ownerID, goalID, in)
	if err != nil {
		return nil, err
	}
	r.put(goal)
	return goal, nil
}

// DeleteGoal removes a goal
func (r *SessionRepository) DeleteGoal(ctx context.Context, goalID string) error {
	if err := r.svc.DeleteGoal(ctx, r.ownerID, goalID); err != nil {
		return err
	}
	r.remove(goalID)
	return nil
}

// CompleteTask completes a task
func (r *SessionRepository) CompleteTask(ctx context.Context, goalID, taskID, summary string) (*Outcome, error) {
	out, err := r.svc.CompleteTask(ctx, r.ownerID, goalID, taskID, summary)
	return r.fold(goalID, out, err)
}

// UncompleteTask reopens a task
func (r *SessionRepository) UncompleteTask(ctx context.Context, goalID, taskID string) (*Outcome, error) {
	out, err := r.svc.UncompleteTask(ctx, r.ownerID, goalID, taskID)
	return r.fold(goalID, out, err)
}

// AddTask inserts a task
func (r *SessionRepository) AddTask(ctx context.Context, goalID string, in roadmap.NewTask) (*Outcome, error) {
	out, err := r.svc.AddTask(ctx, r.ownerID, goalID, in)
	return r.fold(goalID, out, err)
}

// DeleteTask removes a task
func (r *SessionRepository) DeleteTask(ctx context.Context, goalID, taskID string) (*Outcome, error) {
	out, err := r.svc.DeleteTask(ctx, r.ownerID, goalID, taskID)
	return r.fold(goalID, out, err)
}

// SetDueDate sets or clears a due date
func (r *SessionRepository) SetDueDate(ctx context.Context, goalID, taskID string, date *models.CalendarDate) (*Outcome, error) {
	out, err := r.svc.SetDueDate(ctx, r.ownerID, goalID, taskID, date)
	return r.fold(goalID, out, err)
}

// UpdateReflection records reflection fields
func (r *SessionRepository) UpdateReflection(ctx context.Context, goalID string, in *models.Reflection) (*Outcome, error) {
	out, err := r.svc.UpdateReflection(ctx, r.ownerID, goalID, in)
	return r.fold(goalID, out, err)
}
