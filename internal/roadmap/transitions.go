package roadmap

import (
	"strings"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
	"github.com/google/uuid"
)

// NewTaskID generates ids for inserted tasks. Tests may replace it.
var NewTaskID = uuid.NewString

// EffectKind is a calendar action requested by a transition
type EffectKind string

const (
	// EffectSyncEvent creates or updates the mirrored event for a task
	EffectSyncEvent EffectKind = "sync_event"
	// EffectDeleteEvent removes a mirrored event
	EffectDeleteEvent EffectKind = "delete_event"
)

// Effect is a calendar side effect to dispatch once the transition has been persisted
type Effect struct {
	Kind     EffectKind
	TaskID   string
	EventRef string
}

// Result is the outcome of a transition
type Result struct {
	Goal    *models.Goal
	Effects []Effect
	// NewlyCompleted is set when the goal went from incomplete to complete and is now
	// eligible for reflection capture
	NewlyCompleted bool
	// GoalDeleted is set when the last task was removed; the goal itself must be deleted
	GoalDeleted bool
}

// Recompute derives goal.Completed from its tasks and clears the reflection when the goal is
// not fully complete
func Recompute(g *models.Goal) {
	g.Completed = g.AllTasksCompleted()
	if !g.Completed {
		g.Reflection = nil
	}
}

func finish(before bool, g *models.Goal, effects []Effect) *Result {
	Recompute(g)
	return &Result{
		Goal:           g,
		Effects:        effects,
		NewlyCompleted: !before && g.Completed,
	}
}

func findTask(op string, g *models.Goal, taskID string) (int, error) {
	idx := g.TaskIndex(taskID)
	if idx == -1 {
		return -1, apperr.NotFound(op, "task %s not found in goal", taskID)
	}
	return idx, nil
}

func dropEventRef(t *models.Task) []Effect {
	if !t.HasEventRef() {
		t.ExternalEventRef = nil
		return nil
	}
	ref := *t.ExternalEventRef
	t.ExternalEventRef = nil
	return []Effect{{Kind: EffectDeleteEvent, TaskID: t.ID, EventRef: ref}}
}

// Complete marks an unlocked task as completed with a justification
func Complete(g *models.Goal, taskID, summary string) (*Result, error) {
	const op = "complete_task"

	idx, err := findTask(op, g, taskID)
	if err != nil {
		return nil, err
	}
	if g.Tasks[idx].Completed {
		return nil, apperr.Precondition(op, "task is already completed")
	}
	if !IsUnlocked(g.Tasks, idx) {
		return nil, apperr.Precondition(op, "task is locked until the previous task is completed")
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, apperr.Precondition(op, "a completion summary is required")
	}

	next := g.Clone()
	before := g.AllTasksCompleted()
	task := &next.Tasks[idx]
	task.Completed = true
	task.CompletionSummary = summary
	effects := dropEventRef(task)

	return finish(before, next, effects), nil
}

// Uncomplete reopens a completed task, clearing its summary and the goal's reflection
func Uncomplete(g *models.Goal, taskID string) (*Result, error) {
	const op = "uncomplete_task"

	idx, err := findTask(op, g, taskID)
	if err != nil {
		return nil, err
	}
	if !g.Tasks[idx].Completed {
		return nil, apperr.Precondition(op, "only completed tasks can be uncompleted")
	}

	next := g.Clone()
	task := &next.Tasks[idx]
	task.Completed = false
	task.CompletionSummary = ""
	next.Reflection = nil

	var effects []Effect
	if task.HasDueDate() {
		effects = append(effects, Effect{Kind: EffectSyncEvent, TaskID: task.ID})
	}

	return finish(true, next, effects), nil
}

// NewTask describes a task inserted into an existing roadmap
type NewTask struct {
	// AfterIndex refers to the pre-insertion sequence. -1 inserts at the head.
	AfterIndex  int
	Title       string
	Description string
}

// AddTask inserts a fresh incomplete task immediately after AfterIndex
func AddTask(g *models.Goal, in NewTask) (*Result, error) {
	const op = "add_task"

	if in.AfterIndex < -1 || in.AfterIndex > len(g.Tasks)-1 {
		return nil, apperr.Validation(op, "afterIndex %d out of range [-1, %d]", in.AfterIndex, len(g.Tasks)-1)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation(op, "task title is required")
	}

	next := g.Clone()
	before := g.AllTasksCompleted()
	task := models.Task{
		ID:          NewTaskID(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
	}

	pos := in.AfterIndex + 1
	tasks := make([]models.Task, 0, len(next.Tasks)+1)
	tasks = append(tasks, next.Tasks[:pos]...)
	tasks = append(tasks, task)
	tasks = append(tasks, next.Tasks[pos:]...)
	next.Tasks = tasks

	return finish(before, next, nil), nil
}

// DeleteTask removes a task regardless of its lock state. Removing the last task deletes the goal.
func DeleteTask(g *models.Goal, taskID string) (*Result, error) {
	const op = "delete_task"

	idx, err := findTask(op, g, taskID)
	if err != nil {
		return nil, err
	}

	next := g.Clone()
	before := g.AllTasksCompleted()
	effects := dropEventRef(&next.Tasks[idx])
	next.Tasks = append(next.Tasks[:idx], next.Tasks[idx+1:]...)

	if len(next.Tasks) == 0 {
		next.Completed = false
		next.Reflection = nil
		return &Result{Goal: next, Effects: effects, GoalDeleted: true}, nil
	}

	return finish(before, next, effects), nil
}

// SetDueDate sets or clears (date == nil) a task's due date
func SetDueDate(g *models.Goal, taskID string, date *models.CalendarDate) (*Result, error) {
	const op = "set_due_date"

	idx, err := findTask(op, g, taskID)
	if err != nil {
		return nil, err
	}
	if date != nil {
		parsed, err := models.ParseCalendarDate(string(*date))
		if err != nil {
			return nil, apperr.Validation(op, "%s", err.Error())
		}
		date = &parsed
	}

	next := g.Clone()
	before := g.AllTasksCompleted()
	task := &next.Tasks[idx]

	var effects []Effect
	switch {
	case date == nil:
		task.DueDate = nil
		effects = dropEventRef(task)
	case task.Completed:
		task.DueDate = date
	default:
		task.DueDate = date
		effects = append(effects, Effect{Kind: EffectSyncEvent, TaskID: task.ID})
	}

	return finish(before, next, effects), nil
}

// UpdateReflection overwrites the supplied reflection fields on a completed goal
func UpdateReflection(g *models.Goal, in *models.Reflection) (*Result, error) {
	const op = "update_reflection"

	if !g.AllTasksCompleted() {
		return nil, apperr.Precondition(op, "reflection can only be recorded once every task is completed")
	}
	if in == nil {
		return nil, apperr.Validation(op, "reflection is required")
	}
	if in.Satisfaction != nil && (*in.Satisfaction < 1 || *in.Satisfaction > 5) {
		return nil, apperr.Validation(op, "satisfaction must be between 1 and 5")
	}

	next := g.Clone()
	merged := next.Reflection
	if merged == nil {
		merged = &models.Reflection{}
	}
	supplied := in.Clone()
	if supplied.BeginningThoughts != nil {
		merged.BeginningThoughts = supplied.BeginningThoughts
	}
	if supplied.EndThoughts != nil {
		merged.EndThoughts = supplied.EndThoughts
	}
	if supplied.Satisfaction != nil {
		merged.Satisfaction = supplied.Satisfaction
	}
	next.Reflection = merged
	next.Completed = true

	return &Result{Goal: next}, nil
}

// NormalizeTasks prepares a client-supplied task list for storage. Missing ids are assigned,
// blank titles are rejected, and the event-reference and summary invariants are enforced.
func NormalizeTasks(op string, tasks []models.Task) ([]models.Task, error) {
	out := models.CloneTasks(tasks)
	seen := make(map[string]struct{}, len(out))
	for i := range out {
		t := &out[i]
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			return nil, apperr.Validation(op, "task %d: title is required", i)
		}
		if t.ID == "" {
			t.ID = NewTaskID()
		}
		if _, dup := seen[t.ID]; dup {
			return nil, apperr.Validation(op, "task %d: duplicate id %s", i, t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.DueDate != nil {
			if *t.DueDate == "" {
				t.DueDate = nil
			} else if _, err := models.ParseCalendarDate(string(*t.DueDate)); err != nil {
				return nil, apperr.Validation(op, "task %d: %s", i, err.Error())
			}
		}
		t.CompletionSummary = strings.TrimSpace(t.CompletionSummary)
		if !t.Completed {
			t.CompletionSummary = ""
		} else if t.CompletionSummary == "" {
			return nil, apperr.Validation(op, "task %d: a completed task needs a completion summary", i)
		}
		if t.Completed || !t.HasDueDate() {
			t.ExternalEventRef = nil
		}
	}
	return out, nil
}

// ReplaceTasks swaps in a client-edited task list. Event references are owned by the server:
// they carry over by task id while the task stays incomplete and dated, and are deleted otherwise.
func ReplaceTasks(g *models.Goal, tasks []models.Task) (*Result, error) {
	const op = "replace_tasks"

	if len(tasks) == 0 {
		return nil, apperr.Validation(op, "at least one task is required")
	}
	normalized, err := NormalizeTasks(op, tasks)
	if err != nil {
		return nil, err
	}

	previous := make(map[string]models.Task, len(g.Tasks))
	for _, t := range g.Tasks {
		previous[t.ID] = t
	}

	next := g.Clone()
	before := g.AllTasksCompleted()
	kept := make(map[string]bool)
	var effects []Effect

	for i := range normalized {
		t := &normalized[i]
		t.ExternalEventRef = nil
		old, existed := previous[t.ID]
		if t.Completed || !t.HasDueDate() {
			continue
		}
		if existed && old.HasEventRef() {
			ref := *old.ExternalEventRef
			t.ExternalEventRef = &ref
			kept[t.ID] = true
		}
		if !existed || old.Completed || !sameDate(old.DueDate, t.DueDate) ||
			old.Title != t.Title || old.Description != t.Description {
			effects = append(effects, Effect{Kind: EffectSyncEvent, TaskID: t.ID})
		}
	}
	for _, old := range g.Tasks {
		if old.HasEventRef() && !kept[old.ID] {
			effects = append(effects, Effect{Kind: EffectDeleteEvent, TaskID: old.ID, EventRef: *old.ExternalEventRef})
		}
	}

	next.Tasks = normalized
	return finish(before, next, effects), nil
}

func sameDate(a, b *models.CalendarDate) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
