package models

import "time"

// CalendarToken holds the OAuth credentials used to mirror tasks into a user's calendar
type CalendarToken struct {
	OwnerID      string    `json:"ownerId"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"tokenType,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Plan is an LLM-generated decomposition of a goal into ordered tasks
type Plan struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tasks       []PlanTask `json:"tasks"`
}

// PlanTask is one suggested step of a Plan
type PlanTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
