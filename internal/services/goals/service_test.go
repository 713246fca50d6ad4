package goals

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/roadmap"
)

const owner = "owner-1"

type recordingBridge struct {
	mu      sync.Mutex
	synced  []string
	deleted []string
}

func (b *recordingBridge) SyncTaskEvent(_ context.Context, _, _ string, task models.Task) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synced = append(b.synced, task.ID)
	return "evt-" + task.ID, true
}

func (b *recordingBridge) DeleteTaskEvent(_ context.Context, _, ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ref)
}

func (b *recordingBridge) calls() (synced, deleted []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.synced...), append([]string(nil), b.deleted...)
}

// failingStore fails every write after creation
type failingStore struct {
	*database.MemoryGoalStore
}

func (failingStore) Patch(context.Context, string, string, models.GoalPatch) (*models.Goal, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) Delete(context.Context, string, string) error {
	return errors.New("connection reset")
}

func newTestService(t *testing.T) (*Service, *recordingBridge, *database.MemoryGoalStore) {
	t.Helper()
	store := database.NewMemoryGoalStore()
	bridge := &recordingBridge{}
	return NewService(store, bridge, nil, 0), bridge, store
}

func threeTaskGoal() CreateGoalInput {
	return CreateGoalInput{
		ID:    "g1",
		Title: "Run a 10k",
		Tasks: []models.Task{
			{ID: "A", Title: "Buy shoes"},
			{ID: "B", Title: "Run 5k"},
			{ID: "C", Title: "Run 10k"},
		},
	}
}

func datePtr(s string) *models.CalendarDate {
	d := models.CalendarDate(s)
	return &d
}

func TestService_SequentialScenario(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := svc.CompleteTask(ctx, owner, "g1", "A", "bought them")
	if err != nil {
		t.Fatalf("complete A: %v", err)
	}
	if out.NewlyCompleted || out.Goal.Completed {
		t.Error("Goal should not be complete after A")
	}

	if _, err := svc.CompleteTask(ctx, owner, "g1", "C", "skipped ahead"); !apperr.IsPrecondition(err) {
		t.Errorf("Expected precondition error completing locked C, got %v", err)
	}

	if _, err := svc.CompleteTask(ctx, owner, "g1", "B", "ran it"); err != nil {
		t.Fatalf("complete B: %v", err)
	}
	out, err = svc.CompleteTask(ctx, owner, "g1", "C", "finished")
	if err != nil {
		t.Fatalf("complete C: %v", err)
	}
	if !out.NewlyCompleted || !out.Goal.Completed {
		t.Errorf("Expected goal to become complete, got %+v", out)
	}

	score := 5
	out, err = svc.UpdateReflection(ctx, owner, "g1", &models.Reflection{Satisfaction: &score})
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if out.Goal.Reflection == nil || *out.Goal.Reflection.Satisfaction != 5 {
		t.Errorf("Expected stored reflection, got %+v", out.Goal.Reflection)
	}

	out, err = svc.UncompleteTask(ctx, owner, "g1", "B")
	if err != nil {
		t.Fatalf("uncomplete B: %v", err)
	}
	if out.Goal.Completed || out.Goal.Reflection != nil {
		t.Errorf("Expected reopened goal without reflection, got %+v", out.Goal)
	}

	out, err = svc.AddTask(ctx, owner, "g1", roadmap.NewTask{AfterIndex: -1, Title: "Warm up"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if out.Goal.Tasks[0].Title != "Warm up" {
		t.Errorf("Expected new task at the head, got %q", out.Goal.Tasks[0].Title)
	}

	view, err := svc.GetRoadmap(ctx, owner, "g1")
	if err != nil {
		t.Fatalf("roadmap: %v", err)
	}
	if len(view.Tasks) != 4 {
		t.Fatalf("Expected 4 tasks in view, got %d", len(view.Tasks))
	}
}

func TestService_DueDateSyncLifecycle(t *testing.T) {
	t.Parallel()
	svc, bridge, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Wait()
	if synced, _ := bridge.calls(); len(synced) != 0 {
		t.Fatalf("Expected no sync for undated tasks, got %v", synced)
	}

	if _, err := svc.SetDueDate(ctx, owner, "g1", "A", datePtr("2026-11-01")); err != nil {
		t.Fatalf("set due date: %v", err)
	}
	svc.Wait()

	stored, err := store.Get(ctx, owner, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ref := stored.Tasks[0].ExternalEventRef; ref == nil || *ref != "evt-A" {
		t.Fatalf("Expected event ref evt-A written back, got %v", ref)
	}

	if _, err := svc.CompleteTask(ctx, owner, "g1", "A", "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	svc.Wait()

	synced, deleted := bridge.calls()
	if len(synced) != 1 || synced[0] != "A" {
		t.Errorf("Expected a single sync for A, got %v", synced)
	}
	if len(deleted) != 1 || deleted[0] != "evt-A" {
		t.Errorf("Expected evt-A deleted on completion, got %v", deleted)
	}

	stored, _ = store.Get(ctx, owner, "g1")
	if stored.Tasks[0].ExternalEventRef != nil {
		t.Error("Expected completed task to drop its event ref")
	}
}

// racingBridge runs a user mutation after the event is created but before its ref is written back
type racingBridge struct {
	recordingBridge
	during func()
}

func (b *racingBridge) SyncTaskEvent(ctx context.Context, ownerID, goalTitle string, task models.Task) (string, bool) {
	ref, ok := b.recordingBridge.SyncTaskEvent(ctx, ownerID, goalTitle, task)
	if b.during != nil {
		during := b.during
		b.during = nil
		during()
	}
	return ref, ok
}

func TestService_EventWriteBackKeepsConcurrentChanges(t *testing.T) {
	t.Parallel()

	t.Run("completion during sync", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := database.NewMemoryGoalStore()
		bridge := &racingBridge{}
		svc := NewService(store, bridge, nil, 0)
		if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
			t.Fatalf("create: %v", err)
		}

		bridge.during = func() {
			if _, err := svc.CompleteTask(ctx, owner, "g1", "A", "done it"); err != nil {
				t.Errorf("complete: %v", err)
			}
		}
		if _, err := svc.SetDueDate(ctx, owner, "g1", "A", datePtr("2026-11-01")); err != nil {
			t.Fatalf("set due date: %v", err)
		}
		svc.Wait()

		stored, err := store.Get(ctx, owner, "g1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		a := stored.Tasks[0]
		if !a.Completed || a.CompletionSummary != "done it" {
			t.Errorf("Expected completion to survive the write-back, got %+v", a)
		}
		if a.HasEventRef() {
			t.Errorf("Expected no ref on the completed task, got %s", *a.ExternalEventRef)
		}
		if stored.Completed != stored.AllTasksCompleted() {
			t.Errorf("Goal completed=%v disagrees with its tasks", stored.Completed)
		}
		if _, deleted := bridge.calls(); len(deleted) != 1 || deleted[0] != "evt-A" {
			t.Errorf("Expected the orphaned event to be deleted, got %v", deleted)
		}
	})

	t.Run("rename during sync", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := database.NewMemoryGoalStore()
		bridge := &racingBridge{}
		svc := NewService(store, bridge, nil, 0)
		if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
			t.Fatalf("create: %v", err)
		}

		bridge.during = func() {
			title := "Run a half marathon"
			if _, err := svc.PatchGoal(ctx, owner, "g1", PatchGoalInput{Title: &title}); err != nil {
				t.Errorf("patch: %v", err)
			}
		}
		if _, err := svc.SetDueDate(ctx, owner, "g1", "A", datePtr("2026-11-01")); err != nil {
			t.Fatalf("set due date: %v", err)
		}
		svc.Wait()

		stored, _ := store.Get(ctx, owner, "g1")
		if stored.Title != "Run a half marathon" {
			t.Errorf("Expected rename to survive, got %q", stored.Title)
		}
		if ref := stored.Tasks[0].ExternalEventRef; ref == nil || *ref != "evt-A" {
			t.Errorf("Expected ref evt-A to be attached, got %v", ref)
		}
	})
}

func TestService_DeleteGoalRemovesEvents(t *testing.T) {
	t.Parallel()
	svc, bridge, store := newTestService(t)
	ctx := context.Background()

	in := threeTaskGoal()
	in.Tasks[1].DueDate = datePtr("2026-12-01")
	if _, err := svc.CreateGoal(ctx, owner, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Wait()

	if err := svc.DeleteGoal(ctx, owner, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	svc.Wait()

	if _, deleted := bridge.calls(); len(deleted) != 1 || deleted[0] != "evt-B" {
		t.Errorf("Expected evt-B deleted, got %v", deleted)
	}
	if _, err := store.Get(ctx, owner, "g1"); !apperr.IsNotFound(err) {
		t.Errorf("Expected goal gone, got %v", err)
	}
}

func TestService_DeleteLastTaskDeletesGoal(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := CreateGoalInput{ID: "solo", Title: "One step", Tasks: []models.Task{{ID: "only", Title: "Do it"}}}
	if _, err := svc.CreateGoal(ctx, owner, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := svc.DeleteTask(ctx, owner, "solo", "only")
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if !out.GoalDeleted || out.Goal != nil {
		t.Errorf("Expected goal deletion outcome, got %+v", out)
	}
	if _, err := svc.GetGoal(ctx, owner, "solo"); !apperr.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestService_OwnerIsolation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := svc.GetGoal(ctx, "intruder", "g1"); return err }},
		{"complete", func() error { _, err := svc.CompleteTask(ctx, "intruder", "g1", "A", "x"); return err }},
		{"patch", func() error {
			title := "mine now"
			_, err := svc.PatchGoal(ctx, "intruder", "g1", PatchGoalInput{Title: &title})
			return err
		}},
		{"delete", func() error { return svc.DeleteGoal(ctx, "intruder", "g1") }},
	}
	for _, tt := range tests {
		if err := tt.call(); !apperr.IsNotFound(err) {
			t.Errorf("%s: expected not found, got %v", tt.name, err)
		}
	}

	goals, err := svc.ListGoals(ctx, "intruder")
	if err != nil || len(goals) != 0 {
		t.Errorf("Expected no goals for another owner, got %d (%v)", len(goals), err)
	}
}

func TestService_PersistenceFailureDispatchesNothing(t *testing.T) {
	t.Parallel()
	base := database.NewMemoryGoalStore()
	bridge := &recordingBridge{}
	svc := NewService(failingStore{base}, bridge, nil, 0)
	ctx := context.Background()

	in := threeTaskGoal()
	in.Tasks[0].DueDate = datePtr("2026-11-01")
	if _, err := base.Create(ctx, &models.Goal{ID: "g1", OwnerID: owner, Title: in.Title, Tasks: in.Tasks}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := base.Patch(ctx, owner, "g1", models.GoalPatch{Tasks: withRef(in.Tasks, 0, "evt-A")}); err != nil {
		t.Fatalf("seed ref: %v", err)
	}

	if _, err := svc.CompleteTask(ctx, owner, "g1", "A", "done"); !apperr.IsPersistence(err) {
		t.Errorf("Expected persistence error, got %v", err)
	}
	if _, err := svc.SetDueDate(ctx, owner, "g1", "B", datePtr("2026-11-02")); !apperr.IsPersistence(err) {
		t.Errorf("Expected persistence error, got %v", err)
	}
	if err := svc.DeleteGoal(ctx, owner, "g1"); !apperr.IsPersistence(err) {
		t.Errorf("Expected persistence error, got %v", err)
	}
	svc.Wait()

	if synced, deleted := bridge.calls(); len(synced) != 0 || len(deleted) != 0 {
		t.Errorf("Expected no calendar calls, got synced=%v deleted=%v", synced, deleted)
	}
	stored, _ := base.Get(ctx, owner, "g1")
	if stored.Tasks[0].Completed {
		t.Error("Expected stored goal unchanged")
	}
}

func withRef(tasks []models.Task, i int, ref string) []models.Task {
	out := models.CloneTasks(tasks)
	out[i].ExternalEventRef = &ref
	return out
}

func TestService_CreateGoal(t *testing.T) {
	t.Parallel()
	svc, bridge, _ := newTestService(t)
	ctx := context.Background()

	forged := "forged"
	goal, err := svc.CreateGoal(ctx, owner, CreateGoalInput{
		Title: "  Learn cello ",
		Tasks: []models.Task{{Title: "Rent one", DueDate: datePtr("2026-10-20"), ExternalEventRef: &forged}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Wait()

	if goal.ID == "" || goal.Tasks[0].ID == "" {
		t.Error("Expected generated ids")
	}
	if goal.Title != "Learn cello" {
		t.Errorf("Expected trimmed title, got %q", goal.Title)
	}
	if goal.Tasks[0].ExternalEventRef != nil {
		t.Error("Expected client event ref to be ignored")
	}
	if synced, _ := bridge.calls(); len(synced) != 1 {
		t.Errorf("Expected the dated task to sync, got %v", synced)
	}

	tests := []struct {
		name string
		in   CreateGoalInput
	}{
		{"blank title", CreateGoalInput{Title: " ", Tasks: []models.Task{{Title: "x"}}}},
		{"no tasks", CreateGoalInput{Title: "x"}},
		{"blank task title", CreateGoalInput{Title: "x", Tasks: []models.Task{{Title: " "}}}},
	}
	for _, tt := range tests {
		if _, err := svc.CreateGoal(ctx, owner, tt.in); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tt.name, err)
		}
	}
}

func TestService_PatchGoal(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGoal(ctx, owner, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}

	blank := "  "
	if _, err := svc.PatchGoal(ctx, owner, "g1", PatchGoalInput{Title: &blank}); !apperr.IsValidation(err) {
		t.Errorf("Expected validation error for blank title, got %v", err)
	}

	score := 3
	if _, err := svc.PatchGoal(ctx, owner, "g1", PatchGoalInput{Reflection: &models.Reflection{Satisfaction: &score}}); !apperr.IsPrecondition(err) {
		t.Errorf("Expected precondition error for early reflection, got %v", err)
	}

	title := "Run a half marathon"
	goal, err := svc.PatchGoal(ctx, owner, "g1", PatchGoalInput{
		Title: &title,
		Tasks: []models.Task{
			{ID: "A", Title: "Buy shoes", Completed: true, CompletionSummary: "bought"},
			{ID: "B", Title: "Run 5k", Completed: true, CompletionSummary: "ran"},
		},
		Reflection: &models.Reflection{Satisfaction: &score},
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if goal.Title != title || !goal.Completed || len(goal.Tasks) != 2 {
		t.Errorf("Unexpected patched goal %+v", goal)
	}
	if goal.Reflection == nil || *goal.Reflection.Satisfaction != 3 {
		t.Errorf("Expected reflection stored, got %+v", goal.Reflection)
	}

	unchanged, err := svc.PatchGoal(ctx, owner, "g1", PatchGoalInput{})
	if err != nil || unchanged.Title != title {
		t.Errorf("Expected empty patch to return goal unchanged, got %+v (%v)", unchanged, err)
	}
}

func TestSessionRepository(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session := svc.Session(owner)
	if _, err := session.CreateGoal(ctx, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := len(session.Goals()); got != 1 {
		t.Fatalf("Expected 1 cached goal, got %d", got)
	}

	if _, err := session.CompleteTask(ctx, "g1", "B", "too early"); !apperr.IsPrecondition(err) {
		t.Fatalf("Expected precondition error, got %v", err)
	}
	cached, ok := session.Goal("g1")
	if !ok || cached.Tasks[1].Completed {
		t.Error("Expected cached goal unchanged after rejected call")
	}

	if _, err := session.CompleteTask(ctx, "g1", "A", "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	cached, _ = session.Goal("g1")
	if !cached.Tasks[0].Completed {
		t.Error("Expected cached goal to reflect completion")
	}

	cached.Title = "mutated"
	if again, _ := session.Goal("g1"); again.Title == "mutated" {
		t.Error("Expected Goal to return a copy")
	}

	other := svc.Session(owner)
	if err := other.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if goals := other.Goals(); len(goals) != 1 || !goals[0].Tasks[0].Completed {
		t.Errorf("Expected refreshed session to see stored state, got %+v", goals)
	}

	for _, id := range []string{"A", "B", "C"} {
		if _, err := session.DeleteTask(ctx, "g1", id); err != nil {
			t.Fatalf("delete %s: %v", id, err)
		}
	}
	if _, ok := session.Goal("g1"); ok {
		t.Error("Expected goal removed from the session once its last task was deleted")
	}
}

func TestSessionRepository_RefreshFailureKeepsState(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session := svc.Session(owner)
	if _, err := session.CreateGoal(ctx, threeTaskGoal()); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	broken := NewService(cancelledStore{}, nil, nil, 0).Session(owner)
	broken.goals = session.Goals()
	if err := broken.Refresh(cancelled); err == nil {
		t.Fatal("Expected refresh error")
	}
	if len(broken.Goals()) != 1 {
		t.Error("Expected previous goals kept after failed refresh")
	}
}

// cancelledStore fails reads with the context error
type cancelledStore struct {
	database.GoalStore
}

func (cancelledStore) List(ctx context.Context, _ string) ([]*models.Goal, error) {
	return nil, ctx.Err()
}
