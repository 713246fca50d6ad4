package calendar

import (
	"context"
	"errors"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/roadmap"
)

// AttachEventRef records ref on the task when the task still wants a calendar event,
// meaning it exists, is incomplete and has a due date. The check and the write happen under
// the store's lock, so a user change that landed after the event was created is never
// overwritten. It reports whether the ref was kept; when false the caller owns the orphaned
// event and should delete it.
func AttachEventRef(ctx context.Context, store database.GoalStore, ownerID, goalID, taskID, ref string) (bool, error) {
	return store.UpdateTask(ctx, ownerID, goalID, taskID, func(task *models.Task) bool {
		if task.Completed || !task.HasDueDate() {
			return false
		}
		task.ExternalEventRef = &ref
		return true
	})
}

// SyncReport summarizes a SyncUpcoming run
type SyncReport struct {
	Total  int `json:"total"`
	Synced int `json:"count"`
	Failed int `json:"failed"`
}

// Syncer pushes every upcoming task of an owner to the calendar
type Syncer struct {
	store  database.GoalStore
	bridge Bridge
}

// NewSyncer creates a new syncer
func NewSyncer(store database.GoalStore, bridge Bridge) *Syncer {
	return &Syncer{store: store, bridge: bridge}
}

// SyncUpcoming syncs each incomplete, dated task across the owner's incomplete goals and
// records the returned references. Tasks that already carry a reference are updated in place.
func (s *Syncer) SyncUpcoming(ctx context.Context, ownerID string) (*SyncReport, error) {
	goals, err := s.store.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, goal := range goals {
		if goal.Completed {
			continue
		}
		for _, task := range goal.Tasks {
			if task.Completed || !task.HasDueDate() {
				continue
			}
			report.Total++

			ref, ok := s.bridge.SyncTaskEvent(ctx, ownerID, goal.Title, task)
			if !ok {
				report.Failed++
				continue
			}
			kept, err := AttachEventRef(ctx, s.store, ownerID, goal.ID, task.ID, ref)
			if err != nil {
				return report, err
			}
			if !kept {
				s.bridge.DeleteTaskEvent(ctx, ownerID, ref)
				continue
			}
			report.Synced++
		}
	}
	return report, nil
}

// AddedEvent describes an event created by AddEvent
type AddedEvent struct {
	GoalID   string              `json:"goalId"`
	TaskID   string              `json:"taskId"`
	EventRef string              `json:"eventId"`
	DueDate  models.CalendarDate `json:"dueDate"`
}

// AddEvent mirrors one task into the calendar right away. With an empty taskID the next
// incomplete task of the roadmap is used. An undated task is scheduled for today first,
// since only dated tasks carry events.
func (s *Syncer) AddEvent(ctx context.Context, ownerID, goalID, taskID string, today models.CalendarDate) (*AddedEvent, error) {
	const op = "add_calendar_event"

	goal, err := s.store.Get(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	idx := roadmap.FirstIncompleteIndex(goal.Tasks)
	if taskID != "" {
		idx = goal.TaskIndex(taskID)
	}
	if idx < 0 {
		return nil, apperr.Validation(op, "no task to add; complete the previous step or pick a task")
	}
	task := goal.Tasks[idx]
	if task.Completed {
		return nil, apperr.Precondition(op, "completed tasks are not added to the calendar")
	}

	if !task.HasDueDate() {
		due := today
		scheduled, err := s.store.UpdateTask(ctx, ownerID, goalID, task.ID, func(t *models.Task) bool {
			if t.Completed {
				return false
			}
			if !t.HasDueDate() {
				t.DueDate = &due
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if !scheduled {
			return nil, apperr.Precondition(op, "task changed while it was being scheduled")
		}
		task.DueDate = &due
	}

	ref, ok := s.bridge.SyncTaskEvent(ctx, ownerID, goal.Title, task)
	if !ok {
		return nil, apperr.SyncAdvisory(op, errors.New("calendar did not accept the event"))
	}

	kept, err := AttachEventRef(ctx, s.store, ownerID, goalID, task.ID, ref)
	if err != nil || !kept {
		s.bridge.DeleteTaskEvent(ctx, ownerID, ref)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Precondition(op, "task changed while the event was being created")
	}

	return &AddedEvent{GoalID: goalID, TaskID: task.ID, EventRef: ref, DueDate: *task.DueDate}, nil
}
