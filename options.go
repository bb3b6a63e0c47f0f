package concierge

import (
	"io"
	"log/slog"
	"os"

	"github.com/concierge-ai/concierge/agent"
	"github.com/concierge-ai/concierge/config"
	"github.com/concierge-ai/concierge/kg"
	"github.com/concierge-ai/concierge/llm"
	"github.com/concierge-ai/concierge/registry"
	"github.com/concierge-ai/concierge/tool"
)

type options struct {
	cfg        *config.Config
	client     llm.Client
	providers  []tool.Provider
	store      kg.Store
	sessionReg registry.Registry
	checker    agent.ConflictChecker
	logger     *slog.Logger
	node       string
}

func defaultOptions() options {
	host, _ := os.Hostname()
	return options{
		cfg:    config.Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		node:   host,
	}
}

// Option configures an Engine.
type Option func(*options)

// WithConfig supplies engine configuration. Absent fields fall back to
// their defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.cfg = cfg
		}
	}
}

// WithClient sets the model client used for decisions, argument
// resolution, and result summaries. Required.
func WithClient(c llm.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithProviders registers the tool providers discovered at startup.
func WithProviders(providers ...tool.Provider) Option {
	return func(o *options) {
		o.providers = append(o.providers, providers...)
	}
}

// WithStore persists knowledge graphs across sessions. Without it, graphs
// live only in memory.
func WithStore(s kg.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithSessionRegistry announces open sessions to a shared registry so
// other nodes can observe them.
func WithSessionRegistry(r registry.Registry) Option {
	return func(o *options) {
		o.sessionReg = r
	}
}

// WithConflictChecker installs the scheduling conflict check run before
// mutating calendar tools.
func WithConflictChecker(c agent.ConflictChecker) Option {
	return func(o *options) {
		o.checker = c
	}
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNode names this engine instance in session registry entries.
// Defaults to the hostname.
func WithNode(node string) Option {
	return func(o *options) {
		o.node = node
	}
}
