// Package concierge is a conversational automation engine: it turns
// natural-language requests into tool calls against external services and
// keeps durable, per-session context in a knowledge graph.
//
// The Engine is the entry point. It owns the tool registry, the model
// client, and one state machine plus knowledge graph per session:
//
//	engine, err := concierge.New(
//	    concierge.WithClient(client),
//	    concierge.WithProviders(calendarProvider, fitnessProvider),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sessionID, _ := engine.OpenSession(ctx, "sam")
//	reply, _ := engine.Process(ctx, sessionID, "Schedule a workout tomorrow at 6pm")
package concierge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/concierge-ai/concierge/agent"
	"github.com/concierge-ai/concierge/kg"
	"github.com/concierge-ai/concierge/registry"
	"github.com/concierge-ai/concierge/resolve"
	"github.com/concierge-ai/concierge/tool"
)

const instrumentationName = "github.com/concierge-ai/concierge"

// ErrSessionNotFound is returned for operations on unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

type session struct {
	id      string
	user    string
	machine *agent.Machine
	graph   *kg.Graph
	opened  time.Time
}

// Engine hosts concurrent, isolated conversation sessions over one shared
// tool registry.
type Engine struct {
	opts options

	registry *tool.Registry
	manager  *resolve.Manager
	resolver *resolve.Resolver

	mu       sync.RWMutex
	sessions map[string]*session

	tracer   trace.Tracer
	turns    metric.Int64Counter
	faults   metric.Int64Counter
	sessGage metric.Int64UpDownCounter
}

// New builds an Engine. A model client is required; tools come from the
// configured providers and are discovered exactly once, failing fast on a
// name collision.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		return nil, errors.New("concierge: a model client is required")
	}
	if err := wireFromConfig(&o); err != nil {
		return nil, err
	}

	reg, err := tool.Discover(o.providers...)
	if err != nil {
		return nil, fmt.Errorf("concierge: tool discovery: %w", err)
	}

	resolver := resolve.NewResolver(o.client,
		resolve.WithTimeout(o.cfg.Turn.GetResolutionTimeout()))
	manager := resolve.NewManager(reg,
		resolve.WithResolver(resolver),
		resolve.WithRetries(o.cfg.Turn.GetRetries()))

	meter := otel.Meter(instrumentationName)
	turns, err := meter.Int64Counter("concierge.turns",
		metric.WithDescription("Completed conversation turns"))
	if err != nil {
		return nil, err
	}
	faults, err := meter.Int64Counter("concierge.faults",
		metric.WithDescription("Turns that ended in a fault"))
	if err != nil {
		return nil, err
	}
	sessGage, err := meter.Int64UpDownCounter("concierge.sessions",
		metric.WithDescription("Open sessions"))
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:     o,
		registry: reg,
		manager:  manager,
		resolver: resolver,
		sessions: make(map[string]*session),
		tracer:   otel.Tracer(instrumentationName),
		turns:    turns,
		faults:   faults,
		sessGage: sessGage,
	}, nil
}

// Registry exposes the immutable tool registry.
func (e *Engine) Registry() *tool.Registry {
	return e.registry
}

// OpenSession creates a session for a user and returns its id. With a
// graph store configured, the user's previous knowledge graph is loaded;
// with a session registry configured, the session is registered under a
// lease.
func (e *Engine) OpenSession(ctx context.Context, user string) (string, error) {
	id := uuid.New().String()

	graph, err := e.loadGraph(ctx, user)
	if err != nil {
		return "", err
	}

	machine, err := agent.NewMachine(agent.Config{
		Client:      e.opts.client,
		Registry:    e.registry,
		Manager:     e.manager,
		Resolver:    e.resolver,
		Graph:       graph,
		Checker:     e.opts.checker,
		Policy:      agent.NewPolicy(e.opts.client, agent.WithDecisionTimeout(e.opts.cfg.Turn.GetDecisionTimeout())),
		MaxSteps:    e.opts.cfg.Turn.GetMaxSteps(),
		TurnTimeout: e.opts.cfg.Turn.GetTimeout(),
		Window:      e.opts.cfg.Turn.GetWindow(),
		Logger:      e.opts.logger.With(slog.String("session", id)),
	})
	if err != nil {
		return "", err
	}

	s := &session{id: id, user: user, machine: machine, graph: graph, opened: time.Now()}

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	if e.opts.sessionReg != nil {
		err := e.opts.sessionReg.Register(ctx, registry.SessionInfo{
			SessionID: id,
			User:      user,
			Node:      e.opts.node,
			StartedAt: s.opened,
		})
		if err != nil {
			e.opts.logger.Warn("session registration failed",
				slog.String("session", id),
				slog.String("error", err.Error()))
		}
	}

	e.sessGage.Add(ctx, 1)
	e.opts.logger.Info("session opened",
		slog.String("session", id),
		slog.String("user", user))
	return id, nil
}

// Process runs one turn for the session and returns the assistant reply.
func (e *Engine) Process(ctx context.Context, sessionID, text string) (string, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}

	ctx, span := e.tracer.Start(ctx, "concierge.turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("turn", s.machine.State().Turns()+1),
		))
	defer span.End()

	reply, err := s.machine.Turn(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	e.turns.Add(ctx, 1)
	if ferr := s.machine.State().LastFault(); ferr != nil {
		e.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("code", ferr.Code)))
		span.SetAttributes(attribute.String("fault.code", ferr.Code))
	}

	if e.opts.store != nil {
		if err := e.opts.store.Save(ctx, s.user, s.graph); err != nil {
			e.opts.logger.Warn("graph save failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}

	return reply, nil
}

// CloseSession terminates the session, persists its graph, and removes it
// from the registry.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := s.machine.Terminate(); err != nil {
		e.opts.logger.Warn("session termination",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}

	if e.opts.store != nil {
		if err := e.opts.store.Save(ctx, s.user, s.graph); err != nil {
			e.opts.logger.Warn("graph save failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}

	if e.opts.sessionReg != nil {
		if err := e.opts.sessionReg.Deregister(ctx, sessionID); err != nil {
			e.opts.logger.Warn("session deregistration failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}

	e.sessGage.Add(ctx, -1)
	e.opts.logger.Info("session closed", slog.String("session", sessionID))
	return nil
}

// Graph returns a read-only snapshot of the session's knowledge graph for
// visualization consumers.
func (e *Engine) Graph(sessionID string) (kg.Export, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return kg.Export{}, err
	}
	return s.graph.Export(), nil
}

// HistorySnapshot returns the session's ordered state snapshots.
func (e *Engine) HistorySnapshot(sessionID string) ([]agent.Snapshot, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.machine.History().All(), nil
}

// ClearHistory resets the session's snapshot history.
func (e *Engine) ClearHistory(sessionID string) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	s.machine.History().Clear()
	return nil
}

// Sessions returns the ids of every open session.
func (e *Engine) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Health reports whether the engine's collaborators are reachable.
func (e *Engine) Health(ctx context.Context) map[string]string {
	health := map[string]string{
		"engine": "ok",
		"tools":  fmt.Sprintf("%d registered", e.registry.Len()),
	}
	if e.opts.store != nil {
		if _, err := e.opts.store.Load(ctx, "health-check"); err != nil {
			health["graph_store"] = err.Error()
		} else {
			health["graph_store"] = "ok"
		}
	}
	if e.opts.sessionReg != nil {
		if _, err := e.opts.sessionReg.List(ctx); err != nil {
			health["session_registry"] = err.Error()
		} else {
			health["session_registry"] = "ok"
		}
	}
	return health
}

// Close shuts the engine down, closing every open session.
func (e *Engine) Close(ctx context.Context) error {
	for _, id := range e.Sessions() {
		if err := e.CloseSession(ctx, id); err != nil {
			e.opts.logger.Warn("session close failed",
				slog.String("session", id),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *Engine) session(id string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// wireFromConfig builds the graph store and session registry from file
// configuration when no option supplied them explicitly.
func wireFromConfig(o *options) error {
	if o.store == nil && o.cfg.Graph != nil && o.cfg.Graph.RedisURL != "" {
		store, err := kg.NewRedisStore(kg.RedisOptions{URL: o.cfg.Graph.RedisURL})
		if err != nil {
			return fmt.Errorf("concierge: graph store: %w", err)
		}
		o.store = store
	}
	if o.sessionReg == nil && o.cfg.Registry != nil && len(o.cfg.Registry.Endpoints) > 0 {
		client, err := registry.NewClient(registry.Config{
			Endpoints: o.cfg.Registry.Endpoints,
			TTL:       int(o.cfg.Registry.GetLeaseTTL().Seconds()),
		})
		if err != nil {
			return fmt.Errorf("concierge: session registry: %w", err)
		}
		o.sessionReg = client
	}
	return nil
}

func (e *Engine) loadGraph(ctx context.Context, user string) (*kg.Graph, error) {
	if e.opts.store != nil {
		graph, err := e.opts.store.Load(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("concierge: graph load: %w", err)
		}
		if graph.Root() == "" {
			graph.SetRoot("user")
		}
		return graph, nil
	}

	var graphOpts []kg.Option
	graphOpts = append(graphOpts, kg.WithRoot("user"))
	if e.opts.cfg.Graph != nil && e.opts.cfg.Graph.CreateMissing {
		graphOpts = append(graphOpts, kg.WithCreateMissing())
	}
	return kg.New(graphOpts...), nil
}
