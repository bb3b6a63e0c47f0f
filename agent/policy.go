package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/llm"
)

// Action is the closed vocabulary of things the policy may decide to do.
// Model output is validated against this set before dispatch, so a
// hallucinated action can never reach execution.
type Action string

const (
	// ActionChat replies directly without touching any tool.
	ActionChat Action = "chat"

	// ActionUseTool invokes a registered tool.
	ActionUseTool Action = "use_tool"

	// ActionRecordPreference persists a stated preference to the
	// knowledge graph without invoking any tool.
	ActionRecordPreference Action = "record_preference"

	// ActionResolveConflict surfaces a scheduling conflict and proposes
	// alternatives instead of writing.
	ActionResolveConflict Action = "resolve_conflict"
)

// IsValid reports whether a is in the action vocabulary.
func (a Action) IsValid() bool {
	switch a {
	case ActionChat, ActionUseTool, ActionRecordPreference, ActionResolveConflict:
		return true
	}
	return false
}

// Decision is the policy's chosen action plus its payload.
type Decision struct {
	Action Action

	// Reply carries the assistant text for chat, record_preference, and
	// resolve_conflict.
	Reply string

	// Tool and Intent drive the use_tool path: the chosen tool name and
	// the natural-language argument description handed to the resolver.
	Tool   string
	Intent string

	// Preference is the stated preference text for record_preference.
	Preference string
}

const decisionPrompt = `You are the decision policy of a personal assistant.
Decide the next action for the conversation below.

What you know about the user:
%s

Available tools:
%s

Respond with a single JSON object:
{"action": one of ["chat", "use_tool", "record_preference", "resolve_conflict"],
 "reply": assistant text for chat or acknowledgements,
 "tool": tool name when action is use_tool,
 "intent": plain-language description of the tool arguments when action is use_tool,
 "preference": the stated preference when action is record_preference}
Pick use_tool only when a listed tool clearly serves the request.
Pick record_preference when the user states a lasting like, dislike, or habit.`

var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action":     map[string]any{"type": "string", "enum": []any{"chat", "use_tool", "record_preference", "resolve_conflict"}},
		"reply":      map[string]any{"type": "string"},
		"tool":       map[string]any{"type": "string"},
		"intent":     map[string]any{"type": "string"},
		"preference": map[string]any{"type": "string"},
	},
	"required": []string{"action"},
}

// Policy consults the model for one action decision per step.
type Policy struct {
	client  llm.Client
	timeout time.Duration
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithDecisionTimeout bounds each decision call. Default 15s.
func WithDecisionTimeout(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.timeout = d
	}
}

// NewPolicy creates a Policy backed by the given model client.
func NewPolicy(client llm.Client, opts ...PolicyOption) *Policy {
	p := &Policy{
		client:  client,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DecisionInput is everything the policy sees: windowed history, a digest
// of relevant knowledge-graph context, and the tool catalog.
type DecisionInput struct {
	Messages []llm.Message
	Digest   string
	Catalog  string
}

// Decide returns exactly one validated action. Model output naming an
// action outside the vocabulary is a SCHEMA_VIOLATION fault, and so is a
// use_tool decision with no tool name.
func (p *Policy) Decide(ctx context.Context, in DecisionInput) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	digest := in.Digest
	if digest == "" {
		digest = "(nothing recorded yet)"
	}
	catalog := in.Catalog
	if catalog == "" {
		catalog = "(no tools available)"
	}

	messages := append([]llm.Message{
		llm.System(fmt.Sprintf(decisionPrompt, digest, catalog)),
	}, in.Messages...)

	resp, err := p.client.Complete(ctx, llm.NewCompletionRequest(messages,
		llm.WithTemperature(0),
		llm.WithSchema(decisionSchema),
	))
	if err != nil {
		return nil, decisionFault(err)
	}

	raw, err := llm.DecodeObject(resp.Content)
	if err != nil {
		return nil, decisionFault(err)
	}

	d := &Decision{
		Action:     Action(strings.TrimSpace(stringField(raw, "action"))),
		Reply:      stringField(raw, "reply"),
		Tool:       strings.TrimSpace(stringField(raw, "tool")),
		Intent:     stringField(raw, "intent"),
		Preference: stringField(raw, "preference"),
	}

	if !d.Action.IsValid() {
		return nil, fault.New("", "decide", fault.CodeSchemaViolation,
			fmt.Sprintf("model chose unknown action %q", d.Action))
	}
	if d.Action == ActionUseTool && d.Tool == "" {
		return nil, fault.New("", "decide", fault.CodeSchemaViolation,
			"use_tool decision without a tool name")
	}
	return d, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func decisionFault(err error) *fault.Error {
	code := fault.CodeLLMMalformed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = fault.CodeTimeout
	case errors.Is(err, llm.ErrUnavailable):
		code = fault.CodeLLMUnavailable
	}
	return fault.New("", "decide", code, "could not decide next action").WithCause(err)
}
