package goals

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/logger"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/roadmap"
	"github.com/benvon/nextstep/internal/services/calendar"
	"github.com/benvon/nextstep/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultSyncTimeout bounds one batch of calendar work dispatched after a mutation
const DefaultSyncTimeout = 10 * time.Second

// Outcome is the result of a roadmap operation
type Outcome struct {
	Goal *models.Goal `json:"goal,omitempty"`
	// NewlyCompleted is set when this operation completed the goal, prompting reflection
	NewlyCompleted bool `json:"newlyCompleted"`
	// GoalDeleted is set when the last task was removed and the goal went with it
	GoalDeleted bool `json:"goalDeleted"`
}

// CreateGoalInput is a new goal with its initial roadmap
type CreateGoalInput struct {
	ID          string
	Title       string
	Description string
	Tasks       []models.Task
	CreatedAt   time.Time
}

// PatchGoalInput holds direct field edits. Nil fields are left untouched.
type PatchGoalInput struct {
	Title       *string
	Description *string
	Tasks       []models.Task
	Reflection  *models.Reflection
}

// IsEmpty reports whether the input changes nothing
func (in PatchGoalInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.Tasks == nil && in.Reflection == nil
}

// Service orchestrates load, transition, persist and calendar sync for goals
type Service struct {
	store       database.GoalStore
	bridge      calendar.Bridge
	logger      *zap.Logger
	syncTimeout time.Duration
	wg          sync.WaitGroup
}

// NewService creates a goal service. A nil bridge disables calendar sync.
func NewService(store database.GoalStore, bridge calendar.Bridge, log *zap.Logger, syncTimeout time.Duration) *Service {
	if bridge == nil {
		bridge = calendar.NoopBridge{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	return &Service{store: store, bridge: bridge, logger: log, syncTimeout: syncTimeout}
}

// Wait blocks until dispatched calendar work has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// storeErr makes sure every store failure carries a kind
func storeErr(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Persistence(op, err)
}

// ListGoals returns the owner's goals, newest first
func (s *Service) ListGoals(ctx context.Context, ownerID string) ([]*models.Goal, error) {
	goals, err := s.store.List(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list_goals", err)
	}
	return goals, nil
}

// GetGoal returns one of the owner's goals
func (s *Service) GetGoal(ctx context.Context, ownerID, goalID string) (*models.Goal, error) {
	goal, err := s.store.Get(ctx, ownerID, goalID)
	if err != nil {
		return nil, storeErr("get_goal", err)
	}
	return goal, nil
}

// GetRoadmap returns the goal with derived per-task lock state
func (s *Service) GetRoadmap(ctx context.Context, ownerID, goalID string) (*roadmap.View, error) {
	goal, err := s.GetGoal(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}
	return roadmap.NewView(goal), nil
}

// CreateGoal stores a new goal. A missing id is generated. Dated incomplete tasks are synced.
func (s *Service) CreateGoal(ctx context.Context, ownerID string, in CreateGoalInput) (_ *models.Goal, err error) {
	const op = "create_goal"
	ctx, span := telemetry.StartSpan(ctx, "goals."+op)
	defer func() { telemetry.EndSpan(span, err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation(op, "title is required")
	}
	if len(in.Tasks) == 0 {
		return nil, apperr.Validation(op, "at least one task is required")
	}
	tasks, err := roadmap.NormalizeTasks(op, in.Tasks)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].ExternalEventRef = nil
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	goal := &models.Goal{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Tasks:       tasks,
		CreatedAt:   in.CreatedAt,
	}
	roadmap.Recompute(goal)

	created, err := s.store.Create(ctx, goal)
	if err != nil {
		return nil, storeErr(op, err)
	}

	var effects []roadmap.Effect
	for _, t := range created.Tasks {
		if !t.Completed && t.HasDueDate() {
			effects = append(effects, roadmap.Effect{Kind: roadmap.EffectSyncEvent, TaskID: t.ID})
		}
	}
	s.dispatch(ownerID, created, effects)

	return created, nil
}

// PatchGoal applies direct edits. Supplied tasks drive the derived completed flag;
// a reflection may only be written when the resulting goal is complete.
func (s *Service) PatchGoal(ctx context.Context, ownerID, goalID string, in PatchGoalInput) (_ *models.Goal, err error) {
	const op = "patch_goal"
	ctx, span := telemetry.StartSpan(ctx, "goals."+op, attribute.String("goal.id", goalID))
	defer func() { telemetry.EndSpan(span, err) }()

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apperr.Validation(op, "title cannot be empty")
	}

	goal, err := s.store.Get(ctx, ownerID, goalID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if in.IsEmpty() {
		return goal, nil
	}

	next := goal.Clone()
	var effects []roadmap.Effect
	if in.Tasks != nil {
		res, err := roadmap.ReplaceTasks(next, in.Tasks)
		if err != nil {
			return nil, err
		}
		next, effects = res.Goal, res.Effects
	}
	if in.Reflection != nil {
		res, err := roadmap.UpdateReflection(next, in.Reflection)
		if err != nil {
			return nil, err
		}
		next = res.Goal
	}

	patch := persistPatch(next)
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		patch.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		patch.Description = &desc
	}

	updated, err := s.store.Patch(ctx, ownerID, goalID, patch)
	if err != nil {
		return nil, storeErr(op, err)
	}
	s.dispatch(ownerID, updated, effects)
	return updated, nil
}

// DeleteGoal removes the goal and its mirrored events
func (s *Service) DeleteGoal(ctx context.Context, ownerID, goalID string) (err error) {
	const op = "delete_goal"
	ctx, span := telemetry.StartSpan(ctx, "goals."+op, attribute.String("goal.id", goalID))
	defer func() { telemetry.EndSpan(span, err) }()

	goal, err := s.store.Get(ctx, ownerID, goalID)
	if err != nil {
		return storeErr(op, err)
	}
	if err := s.store.Delete(ctx, ownerID, goalID); err != nil {
		return storeErr(op, err)
	}

	var effects []roadmap.Effect
	for _, t := range goal.Tasks {
		if t.HasEventRef() {
			effects = append(effects, roadmap.Effect{Kind: roadmap.EffectDeleteEvent, TaskID: t.ID, EventRef: *t.ExternalEventRef})
		}
	}
	s.dispatch(ownerID, goal, effects)
	return nil
}

// CompleteTask completes an unlocked task with a summary
func (s *Service) CompleteTask(ctx context.Context, ownerID, goalID, taskID, summary string) (*Outcome, error) {
	return s.apply(ctx, "complete_task", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.Complete(g, taskID, summary)
	})
}

// UncompleteTask reopens a completed task
func (s *Service) UncompleteTask(ctx context.Context, ownerID, goalID, taskID string) (*Outcome, error) {
	return s.apply(ctx, "uncomplete_task", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.Uncomplete(g, taskID)
	})
}

// AddTask inserts a task after the given index
func (s *Service) AddTask(ctx context.Context, ownerID, goalID string, in roadmap.NewTask) (*Outcome, error) {
	return s.apply(ctx, "add_task", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.AddTask(g, in)
	})
}

// DeleteTask removes a task; removing the last one deletes the goal
func (s *Service) DeleteTask(ctx context.Context, ownerID, goalID, taskID string) (*Outcome, error) {
	return s.apply(ctx, "delete_task", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.DeleteTask(g, taskID)
	})
}

// SetDueDate sets or clears (date == nil) a task's due date
func (s *Service) SetDueDate(ctx context.Context, ownerID, goalID, taskID string, date *models.CalendarDate) (*Outcome, error) {
	return s.apply(ctx, "set_due_date", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.SetDueDate(g, taskID, date)
	})
}

// UpdateReflection records reflection fields on a completed goal
func (s *Service) UpdateReflection(ctx context.Context, ownerID, goalID string, in *models.Reflection) (*Outcome, error) {
	return s.apply(ctx, "update_reflection", ownerID, goalID, func(g *models.Goal) (*roadmap.Result, error) {
		return roadmap.UpdateReflection(g, in)
	})
}

// apply runs load, transition and persist. Calendar effects are dispatched only after the
// new state is stored; a persistence failure leaves both the store and the calendar untouched.
func (s *Service) apply(ctx context.Context, op, ownerID, goalID string, transition func(*models.Goal) (*roadmap.Result, error)) (_ *Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "goals."+op, attribute.String("goal.id", goalID))
	defer func() { telemetry.EndSpan(span, err) }()
	goal, err := s.store.Get(ctx, ownerID, goalID)
	if err != nil {
		return nil, storeErr(op, err)
	}

	res, err := transition(goal)
	if err != nil {
		return nil, err
	}

	if res.GoalDeleted {
		if err := s.store.Delete(ctx, ownerID, goalID); err != nil {
			return nil, storeErr(op, err)
		}
		s.dispatch(ownerID, res.Goal, res.Effects)
		return &Outcome{GoalDeleted: true}, nil
	}

	updated, err := s.store.Patch(ctx, ownerID, goalID, persistPatch(res.Goal))
	if err != nil {
		return nil, storeErr(op, err)
	}
	s.dispatch(ownerID, updated, res.Effects)

	return &Outcome{Goal: updated, NewlyCompleted: res.NewlyCompleted}, nil
}

// persistPatch writes the mutable roadmap fields of g
func persistPatch(g *models.Goal) models.GoalPatch {
	completed := g.Completed
	patch := models.GoalPatch{
		Tasks:     models.CloneTasks(g.Tasks),
		Completed: &completed,
	}
	if g.Reflection == nil {
		patch.ClearReflection = true
	} else {
		patch.Reflection = g.Reflection.Clone()
	}
	return patch
}

// dispatch runs calendar effects in the background against a snapshot of goal
func (s *Service) dispatch(ownerID string, goal *models.Goal, effects []roadmap.Effect) {
	if len(effects) == 0 {
		return
	}
	snapshot := goal.Clone()
	pending := append([]roadmap.Effect(nil), effects...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()

		for _, effect := range pending {
			switch effect.Kind {
			case roadmap.EffectDeleteEvent:
				s.bridge.DeleteTaskEvent(ctx, ownerID, effect.EventRef)
			case roadmap.EffectSyncEvent:
				s.syncTask(ctx, ownerID, snapshot, effect.TaskID)
			}
		}
	}()
}

func (s *Service) syncTask(ctx context.Context, ownerID string, goal *models.Goal, taskID string) {
	idx := goal.TaskIndex(taskID)
	if idx < 0 {
		return
	}

	ref, ok := s.bridge.SyncTaskEvent(ctx, ownerID, goal.Title, goal.Tasks[idx])
	if !ok {
		s.logger.Info("calendar_sync_skipped",
			zap.String("goal_id", logger.SanitizeID(goal.ID)),
			zap.String("task_id", logger.SanitizeID(taskID)),
		)
		return
	}

	kept, err := calendar.AttachEventRef(ctx, s.store, ownerID, goal.ID, taskID, ref)
	if err != nil {
		s.logger.Warn("calendar_sync_failed",
			zap.String("action", "write_back"),
			zap.String("goal_id", logger.SanitizeID(goal.ID)),
			zap.String("task_id", logger.SanitizeID(taskID)),
			zap.Error(apperr.SyncAdvisory("write_back", err)),
		)
	}
	if !kept {
		// The task changed while the event was being created; drop the orphan.
		s.bridge.DeleteTaskEvent(ctx, ownerID, ref)
	}
}
