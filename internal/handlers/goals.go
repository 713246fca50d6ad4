package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/roadmap"
	"github.com/benvon/nextstep/internal/services/goals"
	"github.com/benvon/nextstep/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// WarningCalendarNotConnected is attached when a dated task cannot be mirrored
const WarningCalendarNotConnected = "calendar_not_connected"

// CalendarStatusFunc reports whether an owner has a connected calendar
type CalendarStatusFunc func(ctx context.Context, ownerID string) bool

// GoalHandler handles goal and roadmap requests
type GoalHandler struct {
	svc               *goals.Service
	calendarConnected CalendarStatusFunc
	logger            *zap.Logger
}

// GoalHandlerOption configures a GoalHandler
type GoalHandlerOption func(*GoalHandler)

// WithCalendarStatus enables calendar_not_connected warnings
func WithCalendarStatus(fn CalendarStatusFunc) GoalHandlerOption {
	return func(h *GoalHandler) { h.calendarConnected = fn }
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(svc *goals.Service, logger *zap.Logger, opts ...GoalHandlerOption) *GoalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GoalHandler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers goal routes. The router should already carry the /goals prefix.
func (h *GoalHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListGoals).Methods("GET")
	r.HandleFunc("", h.CreateGoal).Methods("POST")
	r.HandleFunc("/{id}", h.GetGoal).Methods("GET")
	r.HandleFunc("/{id}", h.PatchGoal).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteGoal).Methods("DELETE")
	r.HandleFunc("/{id}/roadmap", h.GetRoadmap).Methods("GET")
	r.HandleFunc("/{id}/reflection", h.UpdateReflection).Methods("PUT")
	r.HandleFunc("/{id}/tasks", h.AddTask).Methods("POST")
	r.HandleFunc("/{id}/tasks/{taskId}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id}/tasks/{taskId}/complete", h.CompleteTask).Methods("POST")
	r.HandleFunc("/{id}/tasks/{taskId}/uncomplete", h.UncompleteTask).Methods("POST")
	r.HandleFunc("/{id}/tasks/{taskId}/due-date", h.SetDueDate).Methods("PUT")
}

// TaskInput is a task as supplied by the client. Event references are server-owned and not accepted.
type TaskInput struct {
	ID                string  `json:"id" validate:"max=64"`
	Title             string  `json:"title" validate:"required,notblank_text,max=200"`
	Description       string  `json:"description" validate:"max=2000"`
	Completed         bool    `json:"completed"`
	CompletionSummary string  `json:"completionSummary" validate:"max=2000"`
	DueDate           *string `json:"dueDate" validate:"omitempty,calendar_date"`
}

func (in TaskInput) toModel() models.Task {
	t := models.Task{
		ID:                in.ID,
		Title:             validation.SanitizeText(in.Title),
		Description:       validation.SanitizeText(in.Description),
		Completed:         in.Completed,
		CompletionSummary: validation.SanitizeText(in.CompletionSummary),
	}
	if in.DueDate != nil && *in.DueDate != "" {
		d := models.CalendarDate(*in.DueDate)
		t.DueDate = &d
	}
	return t
}

func tasksFromInput(in []TaskInput) []models.Task {
	if in == nil {
		return nil
	}
	out := make([]models.Task, len(in))
	for i, t := range in {
		out[i] = t.toModel()
	}
	return out
}

// ReflectionInput captures end-of-goal reflection fields
type ReflectionInput struct {
	BeginningThoughts *string `json:"beginningThoughts" validate:"omitempty,max=5000"`
	EndThoughts       *string `json:"endThoughts" validate:"omitempty,max=5000"`
	Satisfaction      *int    `json:"satisfaction" validate:"omitempty,min=1,max=5"`
}

func (in *ReflectionInput) toModel() *models.Reflection {
	if in == nil {
		return nil
	}
	return &models.Reflection{
		BeginningThoughts: validation.SanitizeOptional(in.BeginningThoughts),
		EndThoughts:       validation.SanitizeOptional(in.EndThoughts),
		Satisfaction:      in.Satisfaction,
	}
}

// CreateGoalRequest represents a create goal request
type CreateGoalRequest struct {
	ID          string      `json:"id" validate:"max=64"`
	Title       string      `json:"title" validate:"required,notblank_text,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	Tasks       []TaskInput `json:"tasks" validate:"required,min=1,max=50,dive"`
}

// PatchGoalRequest represents a partial goal update. Completed is derived and ignored.
type PatchGoalRequest struct {
	Title       *string          `json:"title" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Tasks       []TaskInput      `json:"tasks" validate:"omitempty,max=50,dive"`
	Completed   *bool            `json:"completed"`
	Reflection  *ReflectionInput `json:"reflection"`
}

// AddTaskRequest inserts a task after AfterIndex (-1 for the head)
type AddTaskRequest struct {
	AfterIndex  *int   `json:"afterIndex" validate:"required"`
	Title       string `json:"title" validate:"required,notblank_text,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// CompleteTaskRequest carries the completion justification
type CompleteTaskRequest struct {
	CompletionSummary string `json:"completionSummary" validate:"required,notblank_text,max=2000"`
}

// DueDateRequest sets a due date; null clears it
type DueDateRequest struct {
	DueDate *string `json:"dueDate" validate:"omitempty,calendar_date"`
}

// GoalResponse is a goal with advisory warnings
type GoalResponse struct {
	*models.Goal
	Warnings []string `json:"warnings,omitempty"`
}

// OutcomeResponse is the result of a roadmap operation
type OutcomeResponse struct {
	Goal           *models.Goal `json:"goal"`
	NewlyCompleted bool         `json:"newlyCompleted"`
	GoalDeleted    bool         `json:"goalDeleted"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// warnings flags dated incomplete tasks that cannot be mirrored
func (h *GoalHandler) warnings(ctx context.Context, ownerID string, goal *models.Goal) []string {
	if h.calendarConnected == nil || goal == nil {
		return nil
	}
	for i := range goal.Tasks {
		t := &goal.Tasks[i]
		if !t.Completed && t.HasDueDate() {
			if h.calendarConnected(ctx, ownerID) {
				return nil
			}
			return []string{WarningCalendarNotConnected}
		}
	}
	return nil
}

func (h *GoalHandler) respondOutcome(w http.ResponseWriter, r *http.Request, ownerID string, out *goals.Outcome) {
	respondJSON(w, http.StatusOK, OutcomeResponse{
		Goal:           out.Goal,
		NewlyCompleted: out.NewlyCompleted,
		GoalDeleted:    out.GoalDeleted,
		Warnings:       h.warnings(r.Context(), ownerID, out.Goal),
	})
}

// ListGoals lists the caller's goals, newest first
func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListGoals(r.Context(), ownerID)
	if err != nil {
		h.logFailure("list_goals", err)
		respondAppError(w, err)
		return
	}
	if list == nil {
		list = []*models.Goal{}
	}
	respondJSON(w, http.StatusOK, list)
}

// CreateGoal creates a goal with its initial roadmap
func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req CreateGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	goal, err := h.svc.CreateGoal(r.Context(), ownerID, goals.CreateGoalInput{
		ID:          req.ID,
		Title:       validation.SanitizeText(req.Title),
		Description: validation.SanitizeText(req.Description),
		Tasks:       tasksFromInput(req.Tasks),
	})
	if err != nil {
		h.logFailure("create_goal", err)
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, GoalResponse{Goal: goal, Warnings: h.warnings(r.Context(), ownerID, goal)})
}

// GetGoal returns one goal
func (h *GoalHandler) GetGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	goal, err := h.svc.GetGoal(r.Context(), ownerID, mux.Vars(r)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, goal)
}

// GetRoadmap returns the goal with per-task lock state
func (h *GoalHandler) GetRoadmap(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetRoadmap(r.Context(), ownerID, mux.Vars(r)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// PatchGoal applies direct field edits
func (h *GoalHandler) PatchGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req PatchGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	goal, err := h.svc.PatchGoal(r.Context(), ownerID, mux.Vars(r)["id"], goals.PatchGoalInput{
		Title:       validation.SanitizeOptional(req.Title),
		Description: validation.SanitizeOptional(req.Description),
		Tasks:       tasksFromInput(req.Tasks),
		Reflection:  req.Reflection.toModel(),
	})
	if err != nil {
		h.logFailure("patch_goal", err)
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, GoalResponse{Goal: goal, Warnings: h.warnings(r.Context(), ownerID, goal)})
}

// DeleteGoal removes a goal
func (h *GoalHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteGoal(r.Context(), ownerID, mux.Vars(r)["id"]); err != nil {
		h.logFailure("delete_goal", err)
		respondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTask inserts a task into the roadmap
func (h *GoalHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req AddTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.AddTask(r.Context(), ownerID, mux.Vars(r)["id"], roadmap.NewTask{
		AfterIndex:  *req.AfterIndex,
		Title:       validation.SanitizeText(req.Title),
		Description: validation.SanitizeText(req.Description),
	})
	if err != nil {
		h.logFailure("add_task", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// DeleteTask removes a task; deleting the last task deletes the goal
func (h *GoalHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	out, err := h.svc.DeleteTask(r.Context(), ownerID, vars["id"], vars["taskId"])
	if err != nil {
		h.logFailure("delete_task", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// CompleteTask completes an unlocked task
func (h *GoalHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req CompleteTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	out, err := h.svc.CompleteTask(r.Context(), ownerID, vars["id"], vars["taskId"], validation.SanitizeText(req.CompletionSummary))
	if err != nil {
		h.logFailure("complete_task", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// UncompleteTask reopens a completed task
func (h *GoalHandler) UncompleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	out, err := h.svc.UncompleteTask(r.Context(), ownerID, vars["id"], vars["taskId"])
	if err != nil {
		h.logFailure("uncomplete_task", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// SetDueDate sets or clears a task's due date
func (h *GoalHandler) SetDueDate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req DueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var date *models.CalendarDate
	if req.DueDate != nil && *req.DueDate != "" {
		d := models.CalendarDate(*req.DueDate)
		date = &d
	}
	vars := mux.Vars(r)
	out, err := h.svc.SetDueDate(r.Context(), ownerID, vars["id"], vars["taskId"], date)
	if err != nil {
		h.logFailure("set_due_date", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// UpdateReflection records reflection fields on a completed goal
func (h *GoalHandler) UpdateReflection(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req ReflectionInput
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.UpdateReflection(r.Context(), ownerID, mux.Vars(r)["id"], req.toModel())
	if err != nil {
		h.logFailure("update_reflection", err)
		respondAppError(w, err)
		return
	}
	h.respondOutcome(w, r, ownerID, out)
}

// logFailure logs unexpected failures; caller mistakes are answered without noise
func (h *GoalHandler) logFailure(op string, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error("goal_operation_failed", zap.String("operation", op), zap.Error(err))
	}
}
