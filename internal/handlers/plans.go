package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/request"
	"github.com/benvon/nextstep/internal/services/ai"
	"github.com/benvon/nextstep/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PlanHandler turns a free-text goal into a suggested roadmap
type PlanHandler struct {
	generator ai.PlanGenerator
	logger    *zap.Logger
}

// NewPlanHandler creates a new plan handler. A nil generator disables the endpoint.
func NewPlanHandler(generator ai.PlanGenerator, logger *zap.Logger) *PlanHandler {
	if generator == nil {
		generator = ai.DisabledGenerator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanHandler{generator: generator, logger: logger}
}

// RegisterRoutes registers plan routes
func (h *PlanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/plans", h.GeneratePlan).Methods("POST")
}

// GeneratePlanRequest represents a plan generation request
type GeneratePlanRequest struct {
	Goal string `json:"goal" validate:"required,notblank_text,max=500"`
}

// GeneratePlan handles POST /plans
func (h *PlanHandler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req GeneratePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := request.WithRequestID(r.Context(), request.RequestID(r.Context()))
	plan, err := h.generator.GeneratePlan(ctx, validation.SanitizeText(req.Goal))
	if err != nil {
		h.respondPlanError(w, ownerID, err)
		return
	}
	if plan.Tasks == nil {
		plan.Tasks = []models.PlanTask{}
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *PlanHandler) respondPlanError(w http.ResponseWriter, ownerID string, err error) {
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Plan generation is not configured")
	case ai.IsQuotaError(err):
		h.logger.Error("plan_quota_exceeded", zap.String("user_id", ownerID), zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Plan generation is temporarily unavailable")
	case ai.IsRateLimitError(err):
		retryAfter := 60 * time.Second
		var apiErr *ai.APIError
		if !errors.As(err, &apiErr) {
			apiErr = ai.ExtractAPIError(err)
		}
		if apiErr != nil && apiErr.RetryAfter != nil {
			retryAfter = *apiErr.RetryAfter
		}
		h.logger.Warn("plan_rate_limited", zap.String("user_id", ownerID), zap.Duration("retry_after", retryAfter))
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "Plan generation is busy, retry shortly")
	default:
		h.logger.Error("plan_generation_failed", zap.String("user_id", ownerID), zap.Error(err))
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to generate a plan")
	}
}
