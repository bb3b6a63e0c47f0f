package agent

import (
	"context"
	"time"
)

// Window is a proposed time slot for a calendar write.
type Window struct {
	Start time.Time
	End   time.Time
}

// Conflict is the answer from a conflict check: whether the proposed
// window overlaps an existing event, and alternatives when it does.
type Conflict struct {
	Conflict     bool
	With         string
	Alternatives []Window
}

// ConflictChecker is consulted before any calendar-mutating write whose
// arguments describe a time window. On conflict the machine proposes the
// alternatives instead of writing.
type ConflictChecker interface {
	Check(ctx context.Context, w Window) (Conflict, error)
}

// ConflictCheckerFunc adapts a function to the ConflictChecker interface.
type ConflictCheckerFunc func(ctx context.Context, w Window) (Conflict, error)

func (f ConflictCheckerFunc) Check(ctx context.Context, w Window) (Conflict, error) {
	return f(ctx, w)
}

// windowFromArgs derives a Window from resolved tool arguments. Recognized
// shapes: RFC3339 "start" with "end", or "start" with integer "duration"
// minutes. Arguments that do not describe a parseable window yield false
// and skip the conflict check.
func windowFromArgs(args map[string]any) (Window, bool) {
	start, ok := parseTimeArg(args["start"])
	if !ok {
		start, ok = parseTimeArg(args["time"])
	}
	if !ok {
		return Window{}, false
	}

	if end, ok := parseTimeArg(args["end"]); ok && end.After(start) {
		return Window{Start: start, End: end}, true
	}

	duration := 60 * time.Minute
	switch d := args["duration"].(type) {
	case int:
		duration = time.Duration(d) * time.Minute
	case int64:
		duration = time.Duration(d) * time.Minute
	case float64:
		duration = time.Duration(d) * time.Minute
	}
	return Window{Start: start, End: start.Add(duration)}, true
}

func parseTimeArg(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
