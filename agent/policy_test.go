package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/llm"
	"github.com/concierge-ai/concierge/schema"
)

// scriptedClient returns canned completions in order, or a fixed error.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
}

func (c *scriptedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.replies) == 0 {
		return &llm.CompletionResponse{Content: "", FinishReason: "stop"}, nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return &llm.CompletionResponse{Content: reply, FinishReason: "stop"}, nil
}

func TestDecide(t *testing.T) {
	ctx := context.Background()

	t.Run("tool decision", func(t *testing.T) {
		client := &scriptedClient{replies: []string{
			`{"action": "use_tool", "tool": "schedule_workout", "intent": "yoga tomorrow at 6pm"}`,
		}}
		d, err := NewPolicy(client).Decide(ctx, DecisionInput{Digest: "- user (person)", Catalog: "- schedule_workout: books"})
		require.NoError(t, err)
		assert.Equal(t, ActionUseTool, d.Action)
		assert.Equal(t, "schedule_workout", d.Tool)
		assert.Equal(t, "yoga tomorrow at 6pm", d.Intent)
	})

	t.Run("preference decision", func(t *testing.T) {
		client := &scriptedClient{replies: []string{
			`{"action": "record_preference", "preference": "I prefer morning workouts", "reply": "Noted!"}`,
		}}
		d, err := NewPolicy(client).Decide(ctx, DecisionInput{})
		require.NoError(t, err)
		assert.Equal(t, ActionRecordPreference, d.Action)
		assert.Equal(t, "I prefer morning workouts", d.Preference)
	})

	t.Run("hallucinated action cannot reach dispatch", func(t *testing.T) {
		client := &scriptedClient{replies: []string{`{"action": "launch_rocket"}`}}
		_, err := NewPolicy(client).Decide(ctx, DecisionInput{})

		var ferr *fault.Error
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, fault.CodeSchemaViolation, ferr.Code)
	})

	t.Run("use_tool without a tool name is a schema violation", func(t *testing.T) {
		client := &scriptedClient{replies: []string{`{"action": "use_tool"}`}}
		_, err := NewPolicy(client).Decide(ctx, DecisionInput{})

		var ferr *fault.Error
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, fault.CodeSchemaViolation, ferr.Code)
	})

	t.Run("non-JSON output", func(t *testing.T) {
		client := &scriptedClient{replies: []string{`let me think about that...`}}
		_, err := NewPolicy(client).Decide(ctx, DecisionInput{})

		var ferr *fault.Error
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, fault.CodeLLMMalformed, ferr.Code)
	})

	t.Run("unavailable model", func(t *testing.T) {
		client := &scriptedClient{err: llm.ErrUnavailable}
		_, err := NewPolicy(client).Decide(ctx, DecisionInput{})

		var ferr *fault.Error
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, fault.CodeLLMUnavailable, ferr.Code)
	})
}

func TestWindowFromArgs(t *testing.T) {
	t.Run("start and end", func(t *testing.T) {
		w, ok := windowFromArgs(map[string]any{
			"start": "2026-09-01T18:00:00Z",
			"end":   "2026-09-01T19:00:00Z",
		})
		require.True(t, ok)
		assert.Equal(t, time.Hour, w.End.Sub(w.Start))
	})

	t.Run("time plus duration minutes", func(t *testing.T) {
		w, ok := windowFromArgs(map[string]any{
			"time":     "2026-09-01T18:00:00Z",
			"duration": 45,
		})
		require.True(t, ok)
		assert.Equal(t, 45*time.Minute, w.End.Sub(w.Start))
	})

	t.Run("coerced integer duration", func(t *testing.T) {
		args, err := schema.Params{
			"start":    schema.Required(schema.String("start time")),
			"duration": schema.Int("length in minutes"),
		}.Coerce(map[string]any{"start": "2026-09-01T18:00:00Z", "duration": 90})
		require.NoError(t, err)

		w, ok := windowFromArgs(args)
		require.True(t, ok)
		assert.Equal(t, 90*time.Minute, w.End.Sub(w.Start))
	})

	t.Run("default duration", func(t *testing.T) {
		w, ok := windowFromArgs(map[string]any{"start": "2026-09-01 18:00"})
		require.True(t, ok)
		assert.Equal(t, time.Hour, w.End.Sub(w.Start))
	})

	t.Run("no parseable window", func(t *testing.T) {
		_, ok := windowFromArgs(map[string]any{"time": "tomorrow evening"})
		assert.False(t, ok)
	})
}
