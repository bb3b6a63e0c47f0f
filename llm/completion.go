package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for LLM backends.
var (
	// ErrUnavailable indicates the backend could not be reached or timed
	// out. Classified as transient by the state machine.
	ErrUnavailable = errors.New("llm: backend unavailable")

	// ErrMalformedOutput indicates the backend produced output that does
	// not satisfy the requested constraints. Classified as a schema
	// violation; never retried at this level.
	ErrMalformedOutput = errors.New("llm: malformed output")
)

// CompletionRequest represents a request for LLM completion.
type CompletionRequest struct {
	// Messages contains the conversation to complete.
	Messages []Message

	// Temperature controls randomness in the output (0.0 to 2.0).
	Temperature *float64

	// MaxTokens limits the maximum number of tokens to generate.
	MaxTokens *int

	// Stop contains sequences that end generation when encountered.
	Stop []string

	// Schema, when non-nil, constrains the output to a JSON object with
	// exactly these properties (JSON-Schema shape). Backends that support
	// native structured output should use it; others must still return a
	// single JSON object or fail with ErrMalformedOutput.
	Schema map[string]any
}

// CompletionResponse represents a completion result.
type CompletionResponse struct {
	// Content is the generated text. For constrained requests this is a
	// JSON object encoding.
	Content string

	// FinishReason indicates why generation stopped ("stop", "length").
	FinishReason string

	// Usage contains token usage statistics.
	Usage TokenUsage
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add combines two TokenUsage values.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// CompletionOption is a functional option for configuring CompletionRequest.
type CompletionOption func(*CompletionRequest)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.Temperature = &t
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) {
		r.MaxTokens = &n
	}
}

// WithStopSequences sets sequences that stop generation.
func WithStopSequences(stops ...string) CompletionOption {
	return func(r *CompletionRequest) {
		r.Stop = stops
	}
}

// WithSchema constrains the completion to a JSON object matching the given
// JSON-Schema shape.
func WithSchema(schema map[string]any) CompletionOption {
	return func(r *CompletionRequest) {
		r.Schema = schema
	}
}

// NewCompletionRequest creates a request from messages and options.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) *CompletionRequest {
	req := &CompletionRequest{Messages: messages}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Client is the LLM contract consumed by the decision policy and the
// argument resolver. Complete must honor context cancellation; a timeout
// surfaces as an error wrapping ErrUnavailable.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// DecodeObject parses a constrained completion's content into a JSON object.
// Markdown code fences around the object are tolerated. A non-object payload
// returns an error wrapping ErrMalformedOutput.
func DecodeObject(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}
