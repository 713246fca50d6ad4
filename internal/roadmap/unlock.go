// Package roadmap implements the gated task sequence of a goal.
//
// Every function here is a pure transition: it takes the current goal and returns the next
// state plus the calendar effects the caller should dispatch after persisting it. Nothing in
// this package performs I/O, and the input goal is never mutated.
package roadmap

import "github.com/benvon/nextstep/internal/models"

// TaskState is the derived, presentation-facing state of a task
type TaskState string

const (
	TaskStateLocked    TaskState = "locked"
	TaskStateUnlocked  TaskState = "unlocked"
	TaskStateCompleted TaskState = "completed"
)

// FirstIncompleteIndex returns the index of the first incomplete task, or -1 when none remain
func FirstIncompleteIndex(tasks []models.Task) int {
	for i := range tasks {
		if !tasks[i].Completed {
			return i
		}
	}
	return -1
}

// IsUnlocked reports whether the task at index i is actionable.
// A task is unlocked if it is completed, if every task is completed, or if it is the first
// incomplete task. The scan runs on every call; nothing is cached.
func IsUnlocked(tasks []models.Task, i int) bool {
	if i < 0 || i >= len(tasks) {
		return false
	}
	if tasks[i].Completed {
		return true
	}
	first := FirstIncompleteIndex(tasks)
	return first == -1 || i == first
}

// StateOf returns the derived state of the task at index i
func StateOf(tasks []models.Task, i int) TaskState {
	switch {
	case i < 0 || i >= len(tasks):
		return TaskStateLocked
	case tasks[i].Completed:
		return TaskStateCompleted
	case IsUnlocked(tasks, i):
		return TaskStateUnlocked
	default:
		return TaskStateLocked
	}
}

// TaskView is a task annotated with its derived state
type TaskView struct {
	models.Task
	Position int       `json:"position"`
	State    TaskState `json:"state"`
	Unlocked bool      `json:"unlocked"`
}

// View is a goal with per-task unlock information
type View struct {
	GoalID               string     `json:"goalId"`
	Title                string     `json:"title"`
	Completed            bool       `json:"completed"`
	FirstIncompleteIndex int        `json:"firstIncompleteIndex"`
	Tasks                []TaskView `json:"tasks"`
}

// NewView derives the roadmap view of g
func NewView(g *models.Goal) *View {
	first := FirstIncompleteIndex(g.Tasks)
	views := make([]TaskView, len(g.Tasks))
	for i, t := range g.Tasks {
		state := StateOf(g.Tasks, i)
		views[i] = TaskView{
			Task:     t,
			Position: i,
			State:    state,
			Unlocked: state != TaskStateLocked,
		}
	}
	return &View{
		GoalID:               g.ID,
		Title:                g.Title,
		Completed:            g.Completed,
		FirstIncompleteIndex: first,
		Tasks:                views,
	}
}
