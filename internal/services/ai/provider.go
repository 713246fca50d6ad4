package ai

import (
	"context"
	"errors"

	"github.com/benvon/nextstep/internal/models"
)

const (
	// MinPlanTasks is the fewest tasks a generated plan may contain
	MinPlanTasks = 5
	// MaxPlanTasks is the most tasks kept from a generated plan
	MaxPlanTasks = 8
)

// ErrNotConfigured is returned when no LLM credentials are available
var ErrNotConfigured = errors.New("plan generation is not configured")

// PlanGenerator decomposes a free-text goal into an ordered plan
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, goal string) (*models.Plan, error)
}

// DisabledGenerator is used when no API key is configured
type DisabledGenerator struct{}

func (DisabledGenerator) GeneratePlan(context.Context, string) (*models.Plan, error) {
	return nil, ErrNotConfigured
}
