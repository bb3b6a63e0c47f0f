package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/tool"
)

// Result is the uniform outcome of a tool execution. Callers branch on OK;
// Err is always a structured fault when OK is false.
type Result struct {
	OK       bool
	ToolName string
	Args     map[string]any
	Value    any
	Err      *fault.Error
}

// Manager runs tools behind a single fault boundary: every failure mode,
// including a panicking handler, comes back as a Result carrying a
// structured fault rather than an escaping error.
type Manager struct {
	registry *tool.Registry
	resolver *Resolver
	retries  int

	tracer trace.Tracer
	calls  metric.Int64Counter
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetries sets how many times a transient failure of a read-only tool
// is retried. Default 1.
func WithRetries(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.retries = n
		}
	}
}

// WithResolver attaches an argument resolver, enabling ExecuteIntent.
func WithResolver(r *Resolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = r
	}
}

// NewManager creates a Manager over the given registry.
func NewManager(registry *tool.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		retries:  1,
		tracer:   otel.Tracer("github.com/concierge-ai/concierge/resolve"),
	}
	m.calls, _ = otel.Meter("github.com/concierge-ai/concierge/resolve").
		Int64Counter("concierge.tool.calls",
			metric.WithDescription("Tool handler invocations"))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute validates args against the tool's schema and invokes it.
// Transient failures of read-only tools are retried once. Mutating tools
// are never retried: a transient failure after a mutating call is
// ambiguous, and a mutation must not be issued twice.
func (m *Manager) Execute(ctx context.Context, name string, args map[string]any) Result {
	t, ok := m.registry.Get(name)
	if !ok {
		return failed(name, args, fault.New(name, "execute", fault.CodeUnknownTool,
			fmt.Sprintf("no tool named %q is registered", name)))
	}

	desc := t.Descriptor()

	coerced, err := desc.Params.Coerce(args)
	if err != nil {
		return failed(name, args, fault.New(name, "execute", fault.CodeInvalidInput, err.Error()).WithCause(err))
	}
	if missing := desc.Params.Missing(coerced); len(missing) > 0 {
		return failed(name, coerced, fault.New(name, "execute", fault.CodeMissingArgument,
			fmt.Sprintf("missing required arguments: %v", missing)).
			WithDetails(map[string]any{"missing": missing}))
	}
	if err := desc.Params.Validate(coerced); err != nil {
		return failed(name, coerced, fault.New(name, "execute", fault.CodeInvalidInput, err.Error()).WithCause(err))
	}

	attempts := 1
	if desc.SideEffect == tool.ReadOnly {
		attempts += m.retries
	}

	var ferr *fault.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := m.invoke(ctx, t, coerced)
		if err == nil {
			return Result{OK: true, ToolName: name, Args: coerced, Value: value}
		}

		ferr = asFault(name, err)
		if !ferr.Class.Retryable() || attempt == attempts {
			break
		}
		slog.Warn("transient tool failure, retrying",
			slog.String("tool", name),
			slog.Int("attempt", attempt),
			slog.String("error", ferr.Error()))
	}

	return failed(name, coerced, ferr)
}

// ExecuteIntent resolves natural-language intent into arguments for the
// named tool and, when resolution is complete, executes it. An incomplete
// resolution returns a nil-error Result with OK false alongside the
// Resolution carrying the follow-up question; the caller asks the user and
// calls again with the reply and the prior gaps.
func (m *Manager) ExecuteIntent(ctx context.Context, name, intent string, priorGaps []string) (Result, *Resolution) {
	if m.resolver == nil {
		return failed(name, nil, fault.New(name, "resolve", fault.CodeResolutionFailed,
			"no resolver configured")), nil
	}

	t, ok := m.registry.Get(name)
	if !ok {
		return failed(name, nil, fault.New(name, "resolve", fault.CodeUnknownTool,
			fmt.Sprintf("no tool named %q is registered", name))), nil
	}

	resolution, err := m.resolver.Resolve(ctx, t.Descriptor(), intent, priorGaps)
	if err != nil {
		return failed(name, nil, asFault(name, err)), nil
	}
	if !resolution.Complete() {
		return Result{ToolName: name, Args: resolution.Args}, resolution
	}

	return m.Execute(ctx, name, resolution.Args), resolution
}

// invoke runs the handler with panic recovery. Each invocation gets its
// own span and call id.
func (m *Manager) invoke(ctx context.Context, t tool.Tool, args map[string]any) (value any, err error) {
	name := t.Descriptor().Name
	callID := uuid.New().String()

	ctx, span := m.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.call_id", callID),
		))
	defer span.End()
	m.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", name)))

	defer func() {
		if r := recover(); r != nil {
			err = fault.New(name, "execute", fault.CodeHandlerException,
				fmt.Sprintf("handler panicked: %v", r))
		}
		if err != nil {
			span.RecordError(err)
		}
	}()
	return t.Invoke(ctx, args)
}

func asFault(name string, err error) *fault.Error {
	var ferr *fault.Error
	if errors.As(err, &ferr) {
		return ferr
	}

	code := fault.CodeHandlerException
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = fault.CodeTimeout
	case errors.Is(err, context.Canceled):
		code = fault.CodeTimeout
	}
	return fault.New(name, "execute", code, err.Error()).WithCause(err)
}

func failed(name string, args map[string]any, ferr *fault.Error) Result {
	slog.Error("tool execution failed",
		slog.String("tool", name),
		slog.String("code", ferr.Code),
		slog.String("class", string(ferr.Class)))
	return Result{ToolName: name, Args: args, Err: ferr}
}
