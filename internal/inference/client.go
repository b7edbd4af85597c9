package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/m-urubek/scio--progress-path/internal/config"
	"github.com/m-urubek/scio--progress-path/internal/domain"
)

var errNoChoices = errors.New("no choices in response")

// OpenAIClient implements Client on the OpenAI chat-completions API with
// strict JSON-schema response formats.
type OpenAIClient struct {
	openai  openai.Client
	model   string
	timeout time.Duration
	retries int
}

// NewOpenAIClient creates a new inference client.
func NewOpenAIClient(cfg config.InferenceConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		openai:  openai.NewClient(opts...),
		model:   model,
		timeout: cfg.RequestTimeout,
		retries: cfg.MaxRetries,
	}, nil
}

type interpretationPayload struct {
	Kind  string   `json:"kind" jsonschema:"enum=binary,enum=percentage,description=How completion of the goal is measured"`
	Steps []string `json:"steps" jsonschema:"description=Ordered concrete steps toward the goal; one step for a single completion event"`
}

type verdictPayload struct {
	Guidance                string `json:"guidance" jsonschema:"description=Short English guidance for the participant's next move"`
	Progress                int    `json:"progress" jsonschema:"description=New absolute progress 0-100, never below the current value"`
	OffTopic                bool   `json:"off_topic" jsonschema:"description=True only if the message contains no on-topic substance at all"`
	SignificantContribution bool   `json:"significant_contribution" jsonschema:"description=True if this message materially advanced the goal"`
}

// Interpret turns free-form goal text into a goal kind and ordered steps.
func (c *OpenAIClient) Interpret(ctx context.Context, goalText string) (*Interpretation, error) {
	system := "You interpret a facilitator's learning goal for a guided group exercise. " +
		"Decide whether the goal is a single completion event (binary) or measurable " +
		"over discrete steps (percentage), and list the ordered steps. Use one step " +
		"for a binary goal."

	var payload interpretationPayload
	err := c.chat(ctx, "goal_interpretation", system, "Goal: "+goalText, generateSchema[interpretationPayload](), &payload)
	if err != nil {
		return nil, err
	}

	kind, steps := domain.NormalizeGoalKind(domain.GoalKind(payload.Kind), payload.Steps)
	if kind != domain.GoalBinary && kind != domain.GoalPercentage {
		return nil, fmt.Errorf("unexpected goal kind %q", payload.Kind)
	}
	return &Interpretation{Kind: kind, Steps: steps}, nil
}

// Evaluate classifies one participant turn and produces guidance.
func (c *OpenAIClient) Evaluate(ctx context.Context, req EvaluateRequest) (*Verdict, error) {
	var payload verdictPayload
	err := c.chat(ctx, "turn_verdict", evaluateSystemPrompt, buildEvaluatePrompt(req), generateSchema[verdictPayload](), &payload)
	if err != nil {
		return nil, err
	}

	return &Verdict{
		Guidance:                payload.Guidance,
		Progress:                payload.Progress,
		OffTopic:                payload.OffTopic,
		SignificantContribution: payload.SignificantContribution,
	}, nil
}

// chat runs one structured chat completion with bounded retries and a
// per-attempt timeout. Any exhausted failure surfaces as a single error.
func (c *OpenAIClient) chat(ctx context.Context, schemaName, system, user string, schema any, result any) error {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        schemaName,
		Description: openai.String("Structured response schema"),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(1000),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}

	baseDelay := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.chatOnce(ctx, params, schemaName, result)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(ctx, lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("inference failed after %d attempts: %w", c.retries, lastErr)
}

func (c *OpenAIClient) chatOnce(ctx context.Context, params openai.ChatCompletionNewParams, schemaName string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai chat: %w", err)
	}

	slog.Debug("inference chat completed",
		"model", c.model,
		"schema", schemaName,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return errNoChoices
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// isRetryable classifies transient provider failures. Rate limits, server
// errors, malformed payloads and network failures are retried; client errors
// and cancelled contexts are not.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.Warn("inference rate limited, will retry", "status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.Warn("inference server error, will retry", "status_code", apiErr.StatusCode)
			return true
		default:
			slog.Error("inference client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	// Timeouts, network errors and malformed payloads are retryable.
	slog.Warn("inference transient error, will retry", "error", err)
	return true
}
