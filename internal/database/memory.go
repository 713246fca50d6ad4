package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
)

type memoryGoal struct {
	goal *models.Goal
	seq  uint64
}

// MemoryGoalStore keeps goals in process memory. Values are deep-copied on the way in and out.
type MemoryGoalStore struct {
	mu    sync.RWMutex
	goals map[string]map[string]*memoryGoal
	seq   uint64
	now   func() time.Time
}

// NewMemoryGoalStore creates an empty in-memory goal store
func NewMemoryGoalStore() *MemoryGoalStore {
	return &MemoryGoalStore{
		goals: make(map[string]map[string]*memoryGoal),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryGoalStore) Create(_ context.Context, goal *models.Goal) (*models.Goal, error) {
	const op = "database.CreateGoal"
	if err := validateNewGoal(op, goal); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.goals[goal.OwnerID]
	if !ok {
		owned = make(map[string]*memoryGoal)
		s.goals[goal.OwnerID] = owned
	}
	if _, exists := owned[goal.ID]; exists {
		return nil, apperr.Validation(op, "goal %s already exists", goal.ID)
	}

	stored := goal.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.seq++
	owned[stored.ID] = &memoryGoal{goal: stored, seq: s.seq}

	return stored.Clone(), nil
}

func (s *MemoryGoalStore) List(_ context.Context, ownerID string) ([]*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*memoryGoal, 0, len(s.goals[ownerID]))
	for _, e := range s.goals[ownerID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.goal.CreatedAt.Equal(b.goal.CreatedAt) {
			return a.goal.CreatedAt.After(b.goal.CreatedAt)
		}
		return a.seq > b.seq
	})

	goals := make([]*models.Goal, len(entries))
	for i, e := range entries {
		goals[i] = e.goal.Clone()
	}
	return goals, nil
}

func (s *MemoryGoalStore) Get(_ context.Context, ownerID, goalID string) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.goals[ownerID][goalID]
	if !ok {
		return nil, apperr.NotFound("database.GetGoal", "goal %s not found", goalID)
	}
	return e.goal.Clone(), nil
}

func (s *MemoryGoalStore) Patch(_ context.Context, ownerID, goalID string, patch models.GoalPatch) (*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.goals[ownerID][goalID]
	if !ok {
		return nil, apperr.NotFound("database.PatchGoal", "goal %s not found", goalID)
	}

	next := e.goal.Clone()
	patch.ApplyTo(next)
	e.goal = next

	return next.Clone(), nil
}

func (s *MemoryGoalStore) UpdateTask(_ context.Context, ownerID, goalID, taskID string, mutate TaskMutator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.goals[ownerID][goalID]
	if !ok {
		return false, apperr.NotFound("database.UpdateTask", "goal %s not found", goalID)
	}
	idx := e.goal.TaskIndex(taskID)
	if idx < 0 {
		return false, nil
	}

	next := e.goal.Clone()
	if !mutate(&next.Tasks[idx]) {
		return false, nil
	}
	e.goal = next
	return true, nil
}

func (s *MemoryGoalStore) Delete(_ context.Context, ownerID, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.goals[ownerID]
	if _, ok := owned[goalID]; !ok {
		return apperr.NotFound("database.DeleteGoal", "goal %s not found", goalID)
	}
	delete(owned, goalID)
	if len(owned) == 0 {
		delete(s.goals, ownerID)
	}
	return nil
}

// MemoryCalendarTokenStore keeps OAuth tokens in process memory
type MemoryCalendarTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]models.CalendarToken
}

// NewMemoryCalendarTokenStore creates an empty in-memory token store
func NewMemoryCalendarTokenStore() *MemoryCalendarTokenStore {
	return &MemoryCalendarTokenStore{tokens: make(map[string]models.CalendarToken)}
}

func (s *MemoryCalendarTokenStore) GetToken(_ context.Context, ownerID string) (*models.CalendarToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[ownerID]
	if !ok {
		return nil, apperr.NotFound("database.GetCalendarToken", "no calendar token for owner")
	}
	return &tok, nil
}

func (s *MemoryCalendarTokenStore) SaveToken(_ context.Context, token *models.CalendarToken) error {
	if token == nil || token.OwnerID == "" {
		return apperr.Validation("database.SaveCalendarToken", "owner is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok := *token
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.tokens[token.OwnerID].RefreshToken
	}
	tok.UpdatedAt = time.Now().UTC()
	s.tokens[token.OwnerID] = tok
	return nil
}

func (s *MemoryCalendarTokenStore) DeleteToken(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, ownerID)
	return nil
}
