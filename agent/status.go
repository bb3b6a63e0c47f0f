// Package agent implements the per-session decision loop: a small state
// machine that, on each user turn, decides whether to chat, invoke a tool,
// record a preference, or resolve a scheduling conflict, and merges the
// outcome back into the conversation and the knowledge graph.
package agent

import "fmt"

// Status is the state machine's position between events.
type Status string

const (
	// StatusAwaitingUser is the resting state: the session waits for the
	// next user message. It is the initial state for a new session.
	StatusAwaitingUser Status = "awaiting_user"

	// StatusActive means a user message is being processed and the
	// decision policy is running.
	StatusActive Status = "active"

	// StatusAwaitingTool means a tool invocation is in flight.
	StatusAwaitingTool Status = "awaiting_tool"

	// StatusError means an unrecoverable turn failure was caught. Never
	// terminal: the machine always self-heals to StatusAwaitingUser.
	StatusError Status = "error"

	// StatusDone means the session was explicitly terminated.
	StatusDone Status = "done"
)

var transitions = map[Status]map[Status]bool{
	StatusAwaitingUser: {StatusActive: true, StatusDone: true},
	StatusActive:       {StatusAwaitingTool: true, StatusAwaitingUser: true, StatusError: true, StatusDone: true},
	StatusAwaitingTool: {StatusActive: true, StatusError: true},
	StatusError:        {StatusAwaitingUser: true},
	StatusDone:         {},
}

// CanTransition reports whether the move from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	return transitions[s][next]
}

// ErrBadTransition wraps an illegal state move.
type ErrBadTransition struct {
	From, To Status
}

func (e *ErrBadTransition) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
