package tool

import (
	"context"
	"errors"

	"github.com/concierge-ai/concierge/schema"
)

// HandlerFunc is a function that implements the tool's execution logic.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Config holds the configuration for building a Tool.
type Config struct {
	name         string
	description  string
	params       schema.Params
	sideEffect   SideEffect
	confirmation string
	handler      HandlerFunc
}

// NewConfig creates a new Config with default values. Tools are read-only
// unless marked otherwise.
func NewConfig() *Config {
	return &Config{
		params:     schema.Params{},
		sideEffect: ReadOnly,
	}
}

// SetName sets the tool name.
func (c *Config) SetName(name string) *Config {
	c.name = name
	return c
}

// SetDescription sets the tool description.
func (c *Config) SetDescription(desc string) *Config {
	c.description = desc
	return c
}

// SetParams sets the argument schema.
func (c *Config) SetParams(p schema.Params) *Config {
	c.params = p
	return c
}

// SetMutating marks the tool as mutating and records the confirmation
// sentence announced before it runs.
func (c *Config) SetMutating(confirmation string) *Config {
	c.sideEffect = Mutating
	c.confirmation = confirmation
	return c
}

// SetHandler sets the execution function.
func (c *Config) SetHandler(fn HandlerFunc) *Config {
	c.handler = fn
	return c
}

type builtTool struct {
	desc    Descriptor
	handler HandlerFunc
}

// New creates a Tool from the provided Config.
// Returns an error if required fields (name, handler) are missing.
func New(cfg *Config) (Tool, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.name == "" {
		return nil, errors.New("tool name is required")
	}

	if cfg.handler == nil {
		return nil, errors.New("handler function is required")
	}

	return &builtTool{
		desc: Descriptor{
			Name:         cfg.name,
			Description:  cfg.description,
			Params:       cfg.params,
			SideEffect:   cfg.sideEffect,
			Confirmation: cfg.confirmation,
		},
		handler: cfg.handler,
	}, nil
}

// MustNew is New for tools declared at startup, where a bad declaration is
// a programming error.
func MustNew(cfg *Config) Tool {
	t, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *builtTool) Descriptor() Descriptor {
	return t.desc
}

func (t *builtTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.handler(ctx, args)
}
