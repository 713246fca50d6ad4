package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/request"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"

	systemPrompt = "You are NextStep, an AI micro-mentor that turns vague life goals into achievable action plans. Respond with valid JSON only."
)

// OpenAIProvider implements PlanGenerator using an OpenAI-compatible chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

func buildPlanPrompt(goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user wants to: %q\n\n", goal)
	fmt.Fprintf(&b, "Break this goal down into %d-%d concrete, ordered micro-tasks. Each task should be:\n", MinPlanTasks, MaxPlanTasks)
	b.WriteString("- Specific and actionable (can be done in 15-45 minutes)\n")
	b.WriteString("- Ordered logically (earlier tasks build foundation for later ones)\n")
	b.WriteString("- Motivating and clear, with helpful guidance in the description\n\n")
	b.WriteString("Make the title motivating and the description a brief, encouraging 1-2 sentences.\n\n")
	b.WriteString(`Respond with a single JSON object with keys: "title", "description", "tasks" (array of {"title", "description"}).`)
	return b.String()
}

// parsePlanResponse decodes the model output, tolerating prose around the JSON object
func parsePlanResponse(content string) (*models.Plan, error) {
	var plan models.Plan
	raw := content
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		start := bytes.Index([]byte(raw), []byte("{"))
		end := bytes.LastIndex([]byte(raw), []byte("}"))
		if start == -1 || end <= start {
			return nil, fmt.Errorf("failed to parse plan response: %w", err)
		}
		raw = raw[start : end+1]
		if err := json.Unmarshal([]byte(raw), &plan); err != nil {
			return nil, fmt.Errorf("failed to parse plan response: %w", err)
		}
	}

	plan.Title = strings.TrimSpace(plan.Title)
	plan.Description = strings.TrimSpace(plan.Description)
	tasks := make([]models.PlanTask, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		t.Title = strings.TrimSpace(t.Title)
		t.Description = strings.TrimSpace(t.Description)
		if t.Title == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	if len(tasks) > MaxPlanTasks {
		tasks = tasks[:MaxPlanTasks]
	}
	plan.Tasks = tasks

	if plan.Title == "" {
		return nil, errors.New("invalid plan shape from model: missing title")
	}
	if len(plan.Tasks) < MinPlanTasks {
		return nil, fmt.Errorf("invalid plan shape from model: %d tasks, need at least %d", len(plan.Tasks), MinPlanTasks)
	}
	return &plan, nil
}

// GeneratePlan asks the model for a plan and validates its shape
func (p *OpenAIProvider) GeneratePlan(ctx context.Context, goal string) (*models.Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, errors.New("goal is required")
	}

	prompt := buildPlanPrompt(goal)
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	requestID := request.RequestID(ctx)
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "generate_plan"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("llm_api_error",
				zap.String("operation", "generate_plan"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate plan: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "generate_plan"),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return parsePlanResponse(content)
}
