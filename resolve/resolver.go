// Package resolve turns natural-language requests into validated tool
// arguments and runs tools behind a single fault boundary.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/llm"
	"github.com/concierge-ai/concierge/tool"
)

const resolvePrompt = `Extract the arguments for the tool %q from the user's message.
Tool description: %s
Respond with a single JSON object containing only the tool's parameters.
Omit any parameter the message does not specify. Do not invent values.`

// Resolution is the outcome of one resolution pass. When Missing is
// non-empty the arguments are incomplete and Question is the follow-up to
// put to the user.
type Resolution struct {
	Args     map[string]any
	Missing  []string
	Question string
}

// Complete reports whether the arguments satisfied the schema.
func (r *Resolution) Complete() bool {
	return len(r.Missing) == 0
}

// Resolver converts free-form text into arguments for a declared tool
// using one structured model call bounded by the tool's schema.
type Resolver struct {
	client  llm.Client
	timeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTimeout bounds each resolution call. Default 10s.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// NewResolver creates a Resolver backed by the given model client.
func NewResolver(client llm.Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:  client,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve extracts arguments for desc from text. priorGaps carries the
// missing parameter names from an earlier pass over the same request; nil
// means this is the first attempt. An incomplete first attempt yields a
// Resolution asking the user for the gaps. An incomplete second attempt
// (priorGaps non-nil) fails with a MISSING_ARGUMENT fault instead: the
// user is asked exactly once.
func (r *Resolver) Resolve(ctx context.Context, desc tool.Descriptor, text string, priorGaps []string) (*Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := llm.NewCompletionRequest(
		[]llm.Message{
			llm.System(fmt.Sprintf(resolvePrompt, desc.Name, desc.Description)),
			llm.User(text),
		},
		llm.WithTemperature(0),
		llm.WithSchema(desc.Params.JSONSchema()),
	)

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return nil, resolutionFault(desc.Name, err)
	}

	raw, err := llm.DecodeObject(resp.Content)
	if err != nil {
		return nil, resolutionFault(desc.Name, err)
	}

	args, err := desc.Params.Coerce(raw)
	if err != nil {
		return nil, fault.New(desc.Name, "resolve", fault.CodeSchemaViolation, err.Error()).WithCause(err)
	}

	missing := desc.Params.Missing(args)
	if len(missing) == 0 {
		if err := desc.Params.Validate(args); err != nil {
			return nil, fault.New(desc.Name, "resolve", fault.CodeSchemaViolation, err.Error()).WithCause(err)
		}
		return &Resolution{Args: args}, nil
	}

	if priorGaps != nil {
		return nil, fault.New(desc.Name, "resolve", fault.CodeMissingArgument,
			fmt.Sprintf("still missing after follow-up: %s", strings.Join(missing, ", "))).
			WithDetails(map[string]any{"missing": missing})
	}

	slog.Debug("argument resolution incomplete",
		slog.String("tool", desc.Name),
		slog.String("missing", strings.Join(missing, ", ")))

	return &Resolution{
		Args:     args,
		Missing:  missing,
		Question: followUpQuestion(desc, missing),
	}, nil
}

func followUpQuestion(desc tool.Descriptor, missing []string) string {
	parts := make([]string, 0, len(missing))
	for _, name := range missing {
		label := name
		if f, ok := desc.Params[name]; ok && f.Description != "" {
			label = fmt.Sprintf("%s (%s)", name, f.Description)
		}
		parts = append(parts, label)
	}
	return fmt.Sprintf("To do that I still need: %s. Could you fill those in?", strings.Join(parts, ", "))
}

func resolutionFault(toolName string, err error) *fault.Error {
	code := fault.CodeResolutionFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = fault.CodeTimeout
	case errors.Is(err, llm.ErrUnavailable):
		code = fault.CodeLLMUnavailable
	case errors.Is(err, llm.ErrMalformedOutput):
		code = fault.CodeLLMMalformed
	}
	return fault.New(toolName, "resolve", code, "could not resolve arguments").WithCause(err)
}
