package agent

import (
	"sync"
	"time"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/llm"
)

// PendingAction is a chosen tool waiting on more input from the user: the
// resolver asked a follow-up question and the next user message answers it.
type PendingAction struct {
	// Tool is the chosen tool name.
	Tool string

	// Intent is the natural-language request accumulated so far.
	Intent string

	// Missing lists the required parameters the follow-up asked for.
	Missing []string
}

func (p *PendingAction) clone() *PendingAction {
	if p == nil {
		return nil
	}
	out := *p
	out.Missing = append([]string(nil), p.Missing...)
	return &out
}

// Snapshot is a point-in-time copy of the session state, safe to hold
// across turns.
type Snapshot struct {
	Status    Status
	Messages  []llm.Message
	Pending   *PendingAction
	LastFault *fault.Error
	Turns     int
	TakenAt   time.Time
}

// State is the per-session state container. The machine is its single
// mutator: a turn claims the state with BeginTurn, and a second concurrent
// claim is rejected with a CONCURRENT_MODIFICATION fault rather than
// interleaved. Reads are safe at any time and return copies.
type State struct {
	mu        sync.Mutex
	busy      bool
	status    Status
	messages  []llm.Message
	pending   *PendingAction
	lastFault *fault.Error
	turns     int
}

// NewState creates a session state in StatusAwaitingUser.
func NewState() *State {
	return &State{status: StatusAwaitingUser}
}

// BeginTurn claims the state for one turn. A turn already in flight is a
// rejected race, not a queue.
func (s *State) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fault.New("", "turn", fault.CodeConcurrentModification,
			"a turn is already in progress for this session")
	}
	s.busy = true
	s.turns++
	return nil
}

// EndTurn releases the claim taken by BeginTurn.
func (s *State) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transition moves the machine to next, enforcing the transition table.
func (s *State) Transition(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransition(next) {
		return &ErrBadTransition{From: s.status, To: next}
	}
	s.status = next
	return nil
}

// Append adds a message to the conversation.
func (s *State) Append(m llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns a copy of the last n conversation messages, keeping a
// leading system message if present. n <= 0 means all.
func (s *State) Messages(n int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		n = len(s.messages)
	}
	return llm.Window(append([]llm.Message(nil), s.messages...), n)
}

// SetPending stores the action awaiting user input. nil clears it.
func (s *State) SetPending(p *PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p.clone()
}

// Pending returns a copy of the pending action, or nil.
func (s *State) Pending() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.clone()
}

// SetFault records the fault that ended the current turn. nil clears it.
func (s *State) SetFault(f *fault.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFault = f
}

// LastFault returns the fault recorded by the most recent failed turn.
func (s *State) LastFault() *fault.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFault
}

// Turns returns how many turns have started.
func (s *State) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Snapshot returns a deep copy of the state for history consumers.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:    s.status,
		Messages:  append([]llm.Message(nil), s.messages...),
		Pending:   s.pending.clone(),
		LastFault: s.lastFault,
		Turns:     s.turns,
		TakenAt:   time.Now(),
	}
}
