package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/kg"
	"github.com/concierge-ai/concierge/llm"
	"github.com/concierge-ai/concierge/resolve"
	"github.com/concierge-ai/concierge/tool"
)

const summaryPrompt = `The tool %q just returned the result below.
Summarize the outcome for the user in one or two friendly sentences.
Result:
%s`

// Config wires a Machine's collaborators. Client, Registry, Manager,
// Resolver, and Graph are required.
type Config struct {
	// Client is the model used for chat replies and result summaries.
	Client llm.Client

	// Registry is the immutable tool registry built at startup.
	Registry *tool.Registry

	// Manager executes tools behind the fault boundary.
	Manager *resolve.Manager

	// Resolver converts natural-language intent into tool arguments.
	Resolver *resolve.Resolver

	// Graph is the session's knowledge graph.
	Graph *kg.Graph

	// Checker is consulted before calendar-mutating writes. Optional;
	// without one, writes proceed unchecked.
	Checker ConflictChecker

	// Extractor pulls facts out of user messages. Defaults to the
	// standard extractor.
	Extractor *kg.Extractor

	// Policy decides the next action. Defaults to NewPolicy(Client).
	Policy *Policy

	// MaxSteps caps actions within one turn. Default 4.
	MaxSteps int

	// TurnTimeout bounds a whole turn. Default 30s.
	TurnTimeout time.Duration

	// SummaryTimeout bounds the result-summary model call. Default 10s.
	SummaryTimeout time.Duration

	// Window is how many recent messages the policy sees. Default 20.
	Window int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Machine drives one session's turns. It is the sole mutator of its State;
// concurrent Turn calls on the same Machine are rejected, not queued.
type Machine struct {
	cfg     Config
	state   *State
	history *History
}

// NewMachine validates the configuration and creates a session machine in
// StatusAwaitingUser.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Client == nil {
		return nil, errors.New("agent: client is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("agent: registry is required")
	}
	if cfg.Manager == nil {
		return nil, errors.New("agent: manager is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("agent: resolver is required")
	}
	if cfg.Graph == nil {
		return nil, errors.New("agent: graph is required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = kg.NewExtractor()
	}
	if cfg.Policy == nil {
		cfg.Policy = NewPolicy(cfg.Client)
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 4
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 10 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Machine{
		cfg:     cfg,
		state:   NewState(),
		history: NewHistory(),
	}, nil
}

// State returns the session state container for snapshot readers.
func (m *Machine) State() *State {
	return m.state
}

// History returns the session's snapshot history.
func (m *Machine) History() *History {
	return m.history
}

// Terminate ends the session. Only legal from StatusAwaitingUser.
func (m *Machine) Terminate() error {
	return m.state.Transition(StatusDone)
}

// Turn processes one user message and returns the assistant reply. Faults
// inside the turn never escape as errors: they end the turn in a
// plain-language message, with the structured fault kept on the state.
// The returned error is reserved for turn-level rejections, a concurrent
// turn or a terminated session.
func (m *Machine) Turn(ctx context.Context, text string) (string, error) {
	if err := m.state.BeginTurn(); err != nil {
		return "", err
	}
	defer m.state.EndTurn()

	if err := m.state.Transition(StatusActive); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.TurnTimeout)
	defer cancel()

	m.state.Append(llm.User(text))
	if _, err := m.cfg.Extractor.Extract(m.cfg.Graph, text); err != nil {
		m.cfg.Logger.Warn("fact extraction failed", slog.String("error", err.Error()))
	}

	var replies []string

	// A follow-up answer for a pending tool takes priority over a fresh
	// decision.
	if pending := m.state.Pending(); pending != nil {
		m.state.SetPending(nil)
		intent := pending.Intent + "\n" + text
		reply, ferr := m.toolStep(ctx, pending.Tool, intent, pending.Missing, &replies)
		if ferr != nil {
			return m.failTurn(ferr), nil
		}
		if reply != "" {
			return reply, nil
		}
	}

	for step := 0; step < m.cfg.MaxSteps; step++ {
		decision, err := m.cfg.Policy.Decide(ctx, DecisionInput{
			Messages: m.state.Messages(m.cfg.Window),
			Digest:   m.cfg.Graph.Digest(nil, 12),
			Catalog:  m.cfg.Registry.Catalog(),
		})
		if err != nil {
			return m.failTurn(asTurnFault(err)), nil
		}

		m.cfg.Logger.Debug("action decided",
			slog.String("action", string(decision.Action)),
			slog.String("tool", decision.Tool))

		switch decision.Action {
		case ActionChat:
			reply := decision.Reply
			if reply == "" && len(replies) == 0 {
				var ferr *fault.Error
				reply, ferr = m.chatReply(ctx)
				if ferr != nil {
					return m.failTurn(ferr), nil
				}
			}
			if reply != "" {
				replies = append(replies, reply)
			}
			return m.finishTurn(replies), nil

		case ActionRecordPreference:
			statement := decision.Preference
			if statement == "" {
				statement = text
			}
			if _, err := m.cfg.Extractor.Extract(m.cfg.Graph, statement); err != nil {
				m.cfg.Logger.Warn("preference extraction failed", slog.String("error", err.Error()))
			}
			reply := decision.Reply
			if reply == "" {
				reply = "Got it, I'll keep that in mind."
			}
			replies = append(replies, reply)
			return m.finishTurn(replies), nil

		case ActionResolveConflict:
			reply := decision.Reply
			if reply == "" {
				reply = "That time clashes with something on your calendar. Want me to look for another slot?"
			}
			replies = append(replies, reply)
			return m.finishTurn(replies), nil

		case ActionUseTool:
			intent := decision.Intent
			if intent == "" {
				intent = text
			}
			reply, ferr := m.toolStep(ctx, decision.Tool, intent, nil, &replies)
			if ferr != nil {
				return m.failTurn(ferr), nil
			}
			if reply != "" {
				return reply, nil
			}
			// Tool result merged; loop so the policy can decide whether
			// this turn needs another step.
		}
	}

	m.cfg.Logger.Warn("step cap reached", slog.Int("max_steps", m.cfg.MaxSteps))
	return m.finishTurn(replies), nil
}

// toolStep runs one tool action. A non-empty reply means the turn already
// ended (follow-up question or conflict proposal); an empty reply with a
// nil fault means the result was merged and the policy should re-evaluate.
func (m *Machine) toolStep(ctx context.Context, name, intent string, priorGaps []string, replies *[]string) (string, *fault.Error) {
	t, ok := m.cfg.Registry.Get(name)
	if !ok {
		return "", fault.New(name, "execute", fault.CodeUnknownTool,
			fmt.Sprintf("no tool named %q is registered", name))
	}
	desc := t.Descriptor()

	if err := m.state.Transition(StatusAwaitingTool); err != nil {
		return "", fault.New(name, "execute", fault.CodeConcurrentModification, err.Error())
	}

	resolution, err := m.cfg.Resolver.Resolve(ctx, desc, intent, priorGaps)
	if err != nil {
		return "", asTurnFault(err)
	}

	if !resolution.Complete() {
		m.state.SetPending(&PendingAction{Tool: name, Intent: intent, Missing: resolution.Missing})
		*replies = append(*replies, resolution.Question)
		m.state.Append(llm.Assistant(resolution.Question))
		return m.endTurnEarly(*replies), nil
	}

	if desc.SideEffect == tool.Mutating {
		if m.cfg.Checker != nil {
			if w, ok := windowFromArgs(resolution.Args); ok {
				conflict, err := m.cfg.Checker.Check(ctx, w)
				if err != nil {
					return "", asTurnFault(err)
				}
				if conflict.Conflict {
					reply := conflictReply(conflict)
					*replies = append(*replies, reply)
					m.state.Append(llm.Assistant(reply))
					return m.endTurnEarly(*replies), nil
				}
			}
		}

		// Confirmation only once the write is actually going to happen.
		if desc.Confirmation != "" {
			*replies = append(*replies, desc.Confirmation)
			m.state.Append(llm.Assistant(desc.Confirmation))
		}
	}

	result := m.cfg.Manager.Execute(ctx, name, resolution.Args)
	if !result.OK {
		return "", result.Err
	}

	m.state.Append(llm.ToolNote(name, fmt.Sprint(result.Value)))
	if desc.SideEffect == tool.Mutating {
		m.recordEvent(desc, result.Args)
	}

	summary, ferr := m.summarize(ctx, name, result.Value)
	if ferr != nil {
		return "", ferr
	}
	*replies = append(*replies, summary)
	m.state.Append(llm.Assistant(summary))

	if err := m.state.Transition(StatusActive); err != nil {
		return "", fault.New(name, "execute", fault.CodeConcurrentModification, err.Error())
	}
	return "", nil
}

// endTurnEarly closes a turn that stopped mid-pipeline to ask the user
// something: back through Active to AwaitingUser, snapshot recorded.
func (m *Machine) endTurnEarly(replies []string) string {
	if err := m.state.Transition(StatusActive); err != nil {
		m.cfg.Logger.Error("transition failed", slog.String("error", err.Error()))
	}
	m.endAwaitingUser()
	m.history.Append(m.state.Snapshot())
	return strings.Join(replies, "\n")
}

// recordEvent mirrors a successful mutating call into the knowledge graph
// so future turns know about it.
func (m *Machine) recordEvent(desc tool.Descriptor, args map[string]any) {
	root := m.cfg.Graph.Root()
	if root == "" {
		root = "user"
		m.cfg.Graph.SetRoot(root)
	}
	if _, err := m.cfg.Graph.UpsertEntity(root, kg.TypePerson, nil); err != nil {
		m.cfg.Logger.Warn("event recording failed", slog.String("error", err.Error()))
		return
	}

	id := ""
	for _, key := range []string{"activity", "title", "summary", "event"} {
		if s, ok := args[key].(string); ok && s != "" {
			id = slug(s)
			break
		}
	}
	if id == "" {
		id = slug(desc.Name) + "_" + fmt.Sprint(m.state.Turns())
	}

	attrs := make(map[string]any)
	for k, v := range args {
		attrs[k] = v
	}
	attrs["tool"] = desc.Name

	if _, err := m.cfg.Graph.UpsertEntity(id, kg.TypeEvent, attrs); err != nil {
		m.cfg.Logger.Warn("event recording failed", slog.String("error", err.Error()))
		return
	}
	if _, err := m.cfg.Graph.UpsertRelation(root, id, kg.RelScheduled, nil); err != nil {
		m.cfg.Logger.Warn("event recording failed", slog.String("error", err.Error()))
	}
}

// summarize turns a raw tool result into a user-facing sentence. An empty
// summary from the model is treated as malformed output.
func (m *Machine) summarize(ctx context.Context, toolName string, value any) (string, *fault.Error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SummaryTimeout)
	defer cancel()

	resp, err := m.cfg.Client.Complete(ctx, llm.NewCompletionRequest([]llm.Message{
		llm.System(fmt.Sprintf(summaryPrompt, toolName, fmt.Sprint(value))),
	}))
	if err != nil {
		return "", asTurnFault(err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fault.New(toolName, "summarize", fault.CodeLLMMalformed,
			"model returned an empty result summary")
	}
	return summary, nil
}

func (m *Machine) chatReply(ctx context.Context) (string, *fault.Error) {
	resp, err := m.cfg.Client.Complete(ctx, llm.NewCompletionRequest(m.state.Messages(m.cfg.Window)))
	if err != nil {
		return "", asTurnFault(err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = "Okay."
	}
	return reply, nil
}

// finishTurn closes a successful turn: back to AwaitingUser, fault
// cleared, snapshot recorded.
func (m *Machine) finishTurn(replies []string) string {
	reply := strings.Join(replies, "\n")
	if reply == "" {
		reply = "Okay."
	}
	if len(replies) > 0 {
		last := replies[len(replies)-1]
		msgs := m.state.Messages(1)
		if len(msgs) == 0 || msgs[len(msgs)-1].Content != last {
			m.state.Append(llm.Assistant(last))
		}
	} else {
		m.state.Append(llm.Assistant(reply))
	}
	m.state.SetFault(nil)
	m.endAwaitingUser()
	m.history.Append(m.state.Snapshot())
	return reply
}

// failTurn converts a fault into a plain-language reply. The machine
// passes through Error and always self-heals to AwaitingUser.
func (m *Machine) failTurn(ferr *fault.Error) string {
	m.cfg.Logger.Error("turn failed",
		slog.String("code", ferr.Code),
		slog.String("class", string(ferr.Class)),
		slog.String("error", ferr.Error()))

	m.state.SetFault(ferr)
	if err := m.state.Transition(StatusError); err != nil {
		m.cfg.Logger.Error("transition failed", slog.String("error", err.Error()))
	}

	reply := ferr.UserMessage()
	m.state.Append(llm.Assistant(reply))

	if err := m.state.Transition(StatusAwaitingUser); err != nil {
		m.cfg.Logger.Error("transition failed", slog.String("error", err.Error()))
	}
	m.history.Append(m.state.Snapshot())
	return reply
}

func (m *Machine) endAwaitingUser() {
	if m.state.Status() == StatusAwaitingUser {
		return
	}
	if err := m.state.Transition(StatusAwaitingUser); err != nil {
		m.cfg.Logger.Error("transition failed", slog.String("error", err.Error()))
	}
}

func conflictReply(c Conflict) string {
	with := ""
	if c.With != "" {
		with = fmt.Sprintf(" with %s", c.With)
	}
	if len(c.Alternatives) == 0 {
		return fmt.Sprintf("That time conflicts%s. Could you pick another slot?", with)
	}
	slots := make([]string, 0, len(c.Alternatives))
	for _, w := range c.Alternatives {
		slots = append(slots, w.Start.Format("Mon 3:04pm"))
	}
	return fmt.Sprintf("That time conflicts%s. I could do %s instead. Which works for you?",
		with, strings.Join(slots, " or "))
}

func asTurnFault(err error) *fault.Error {
	var ferr *fault.Error
	if errors.As(err, &ferr) {
		return ferr
	}
	code := fault.CodeHandlerException
	if errors.Is(err, context.DeadlineExceeded) {
		code = fault.CodeTimeout
	}
	return fault.New("", "turn", code, err.Error()).WithCause(err)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}
