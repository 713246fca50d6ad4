package models

import (
	"testing"
)

func TestGoal_AllTasksCompleted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tasks    []Task
		expected bool
	}{
		{"no tasks", nil, false},
		{"empty tasks", []Task{}, false},
		{"one incomplete", []Task{{ID: "a"}}, false},
		{"mixed", []Task{{ID: "a", Completed: true}, {ID: "b"}}, false},
		{"all completed", []Task{{ID: "a", Completed: true}, {ID: "b", Completed: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Goal{Tasks: tt.tasks}
			if got := g.AllTasksCompleted(); got != tt.expected {
				t.Errorf("AllTasksCompleted() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestGoal_CloneIsDeep(t *testing.T) {
	t.Parallel()

	due := CalendarDate("2026-01-02")
	ref := "evt-1"
	thoughts := "hopeful"
	score := 4
	g := &Goal{
		ID:         "g1",
		Tasks:      []Task{{ID: "a", DueDate: &due, ExternalEventRef: &ref}},
		Reflection: &Reflection{BeginningThoughts: &thoughts, Satisfaction: &score},
	}

	c := g.Clone()
	*c.Tasks[0].DueDate = "2030-01-01"
	*c.Tasks[0].ExternalEventRef = "changed"
	c.Tasks[0].Title = "changed"
	*c.Reflection.Satisfaction = 1

	if *g.Tasks[0].DueDate != "2026-01-02" {
		t.Errorf("Expected original due date to be untouched, got %s", *g.Tasks[0].DueDate)
	}
	if *g.Tasks[0].ExternalEventRef != "evt-1" {
		t.Errorf("Expected original event ref to be untouched, got %s", *g.Tasks[0].ExternalEventRef)
	}
	if g.Tasks[0].Title != "" {
		t.Errorf("Expected original title to be untouched, got %s", g.Tasks[0].Title)
	}
	if *g.Reflection.Satisfaction != 4 {
		t.Errorf("Expected original satisfaction to be untouched, got %d", *g.Reflection.Satisfaction)
	}
}

func TestParseCalendarDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input     string
		expectErr bool
	}{
		{"2026-10-14", false},
		{"2026-02-30", true},
		{"2026-10-14T09:00:00Z", true},
		{"", true},
		{"14/10/2026", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			d, err := ParseCalendarDate(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %q", tt.input, d)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(d) != tt.input {
				t.Errorf("Expected %q, got %q", tt.input, d)
			}
		})
	}
}

func TestCalendarDate_NextDay(t *testing.T) {
	t.Parallel()

	next, err := CalendarDate("2026-12-31").NextDay()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if next != "2027-01-01" {
		t.Errorf("Expected 2027-01-01, got %s", next)
	}
}

func TestGoalPatch_ApplyTo(t *testing.T) {
	t.Parallel()

	score := 5
	title := "New title"
	g := &Goal{ID: "g1", Title: "Old", Description: "keep", Tasks: []Task{{ID: "a"}}}

	patch := &GoalPatch{Title: &title, Reflection: &Reflection{Satisfaction: &score}}
	if patch.IsEmpty() {
		t.Fatal("Expected patch to be non-empty")
	}
	patch.ApplyTo(g)

	if g.Title != "New title" {
		t.Errorf("Expected title to be updated, got %s", g.Title)
	}
	if g.Description != "keep" {
		t.Errorf("Expected description to be untouched, got %s", g.Description)
	}
	if len(g.Tasks) != 1 {
		t.Errorf("Expected tasks to be untouched, got %d", len(g.Tasks))
	}
	if g.Reflection == nil || *g.Reflection.Satisfaction != 5 {
		t.Errorf("Expected reflection to be set, got %+v", g.Reflection)
	}

	reset := &GoalPatch{Reflection: &Reflection{}, ClearReflection: true}
	reset.ApplyTo(g)
	if g.Reflection != nil {
		t.Errorf("Expected reflection to be cleared, got %+v", g.Reflection)
	}

	if !(&GoalPatch{}).IsEmpty() {
		t.Error("Expected zero patch to be empty")
	}
}
