// Package tool defines the tool contract, a builder for declaring tools in
// code, and startup discovery that assembles providers into an immutable
// registry.
package tool

import (
	"context"

	"github.com/concierge-ai/concierge/schema"
)

// SideEffect classifies what invoking a tool does to the outside world.
type SideEffect string

const (
	// ReadOnly tools can be retried and re-issued freely.
	ReadOnly SideEffect = "read_only"

	// Mutating tools change external state. A successful mutating call is
	// never re-issued; a conflict check runs before calendar writes.
	Mutating SideEffect = "mutating"
)

// Descriptor is the static, declarative half of a tool: everything the
// decision policy and the argument resolver need to know without calling it.
type Descriptor struct {
	// Name uniquely identifies the tool within a registry.
	Name string

	// Description tells the decision policy when to pick this tool.
	Description string

	// Params declares the argument schema.
	Params schema.Params

	// SideEffect classifies the tool for retry and confirmation policy.
	SideEffect SideEffect

	// Confirmation is the first-person sentence announced before a
	// mutating invocation ("I'll schedule that for you."). Optional.
	Confirmation string
}

// Tool is an invokable capability. Implementations must be safe for
// concurrent invocation.
type Tool interface {
	// Descriptor returns the tool's static description.
	Descriptor() Descriptor

	// Invoke executes the tool with validated, coerced arguments.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Provider contributes a batch of tools at discovery time. A provider is
// typically one integration (calendar, preferences, workouts).
type Provider interface {
	// Tools returns the provider's tools. Called once during discovery.
	Tools() []Tool
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func() []Tool

func (f ProviderFunc) Tools() []Tool {
	return f()
}
