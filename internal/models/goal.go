package models

import (
	"fmt"
	"time"
)

// CalendarDateLayout is the wire format for task due dates
const CalendarDateLayout = "2006-01-02"

// CalendarDate is a date without a time component, encoded as YYYY-MM-DD
type CalendarDate string

// ParseCalendarDate validates s and returns it as a CalendarDate
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(CalendarDateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid calendar date %q: expected YYYY-MM-DD", s)
	}
	return CalendarDate(t.Format(CalendarDateLayout)), nil
}

// Time returns the date at midnight UTC
func (d CalendarDate) Time() (time.Time, error) {
	return time.Parse(CalendarDateLayout, string(d))
}

// NextDay returns the following calendar date
func (d CalendarDate) NextDay() (CalendarDate, error) {
	t, err := d.Time()
	if err != nil {
		return "", err
	}
	return CalendarDate(t.AddDate(0, 0, 1).Format(CalendarDateLayout)), nil
}

// Task is one step in a goal's roadmap
type Task struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Completed         bool          `json:"completed"`
	CompletionSummary string        `json:"completionSummary,omitempty"`
	DueDate           *CalendarDate `json:"dueDate,omitempty"`
	ExternalEventRef  *string       `json:"externalEventRef,omitempty"`
}

// HasDueDate reports whether the task carries a due date
func (t *Task) HasDueDate() bool {
	return t.DueDate != nil && *t.DueDate != ""
}

// HasEventRef reports whether the task is mirrored in an external calendar
func (t *Task) HasEventRef() bool {
	return t.ExternalEventRef != nil && *t.ExternalEventRef != ""
}

// Reflection is captured once a goal reaches full completion
type Reflection struct {
	BeginningThoughts *string `json:"beginningThoughts,omitempty"`
	EndThoughts       *string `json:"endThoughts,omitempty"`
	Satisfaction      *int    `json:"satisfaction,omitempty" validate:"omitempty,min=1,max=5"`
}

// Goal is a user's top-level objective with its ordered task roadmap
type Goal struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"ownerId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tasks       []Task      `json:"tasks"`
	CreatedAt   time.Time   `json:"createdAt"`
	Completed   bool        `json:"completed"`
	Reflection  *Reflection `json:"reflection,omitempty"`
}

// AllTasksCompleted reports whether the goal has at least one task and every task is completed.
// An empty task list is never complete.
func (g *Goal) AllTasksCompleted() bool {
	if len(g.Tasks) == 0 {
		return false
	}
	for i := range g.Tasks {
		if !g.Tasks[i].Completed {
			return false
		}
	}
	return true
}

// TaskIndex returns the position of the task with the given id, or -1
func (g *Goal) TaskIndex(taskID string) int {
	for i := range g.Tasks {
		if g.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the goal
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	out := *g
	out.Tasks = CloneTasks(g.Tasks)
	out.Reflection = g.Reflection.Clone()
	return &out
}

// CloneTasks deep-copies a task slice, preserving nil
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		if t.DueDate != nil {
			d := *t.DueDate
			t.DueDate = &d
		}
		if t.ExternalEventRef != nil {
			ref := *t.ExternalEventRef
			t.ExternalEventRef = &ref
		}
		out[i] = t
	}
	return out
}

// Clone returns a deep copy of the reflection
func (r *Reflection) Clone() *Reflection {
	if r == nil {
		return nil
	}
	out := &Reflection{}
	if r.BeginningThoughts != nil {
		s := *r.BeginningThoughts
		out.BeginningThoughts = &s
	}
	if r.EndThoughts != nil {
		s := *r.EndThoughts
		out.EndThoughts = &s
	}
	if r.Satisfaction != nil {
		n := *r.Satisfaction
		out.Satisfaction = &n
	}
	return out
}

// GoalPatch holds a partial update. Nil fields are left untouched.
type GoalPatch struct {
	Title       *string
	Description *string
	Tasks       []Task
	Completed   *bool
	Reflection  *Reflection
	// ClearReflection removes the stored reflection. It wins over Reflection.
	ClearReflection bool
}

// IsEmpty reports whether the patch changes nothing
func (p *GoalPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Tasks == nil &&
		p.Completed == nil && p.Reflection == nil && !p.ClearReflection
}

// ApplyTo writes the provided fields onto g
func (p *GoalPatch) ApplyTo(g *Goal) {
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Tasks != nil {
		g.Tasks = CloneTasks(p.Tasks)
	}
	if p.Completed != nil {
		g.Completed = *p.Completed
	}
	if p.Reflection != nil {
		g.Reflection = p.Reflection.Clone()
	}
	if p.ClearReflection {
		g.Reflection = nil
	}
}
