package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/fault"
	"github.com/concierge-ai/concierge/schema"
	"github.com/concierge-ai/concierge/tool"
)

type countingHandler struct {
	calls   int
	results []error
	value   any
}

func (h *countingHandler) invoke(ctx context.Context, args map[string]any) (any, error) {
	h.calls++
	var err error
	if len(h.results) > 0 {
		err = h.results[0]
		h.results = h.results[1:]
	}
	if err != nil {
		return nil, err
	}
	return h.value, nil
}

func schemaRequiredString(desc string) schema.Field {
	return schema.Required(schema.String(desc))
}

func buildRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	reg, err := tool.Discover(tool.ProviderFunc(func() []tool.Tool { return tools }))
	require.NoError(t, err)
	return reg
}

func readOnlyTool(t *testing.T, name string, h *countingHandler) tool.Tool {
	t.Helper()
	return tool.MustNew(tool.NewConfig().
		SetName(name).
		SetParams(schema.Params{"q": schema.Required(schema.String("query"))}).
		SetHandler(h.invoke))
}

func mutatingTool(t *testing.T, name string, h *countingHandler) tool.Tool {
	t.Helper()
	return tool.MustNew(tool.NewConfig().
		SetName(name).
		SetMutating("I'll schedule that for you.").
		SetParams(schema.Params{"q": schema.Required(schema.String("query"))}).
		SetHandler(h.invoke))
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	args := map[string]any{"q": "x"}

	t.Run("success", func(t *testing.T) {
		h := &countingHandler{value: "result"}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", args)
		require.True(t, res.OK)
		assert.Equal(t, "result", res.Value)
		assert.Nil(t, res.Err)
		assert.Equal(t, 1, h.calls)
	})

	t.Run("unknown tool", func(t *testing.T) {
		m := NewManager(buildRegistry(t))
		res := m.Execute(ctx, "missing", args)
		require.False(t, res.OK)
		assert.Equal(t, fault.CodeUnknownTool, res.Err.Code)
	})

	t.Run("missing required argument", func(t *testing.T) {
		h := &countingHandler{}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", map[string]any{})
		require.False(t, res.OK)
		assert.Equal(t, fault.CodeMissingArgument, res.Err.Code)
		assert.Equal(t, 0, h.calls, "handler must not run on bad input")
	})

	t.Run("handler error wrapped as handler exception", func(t *testing.T) {
		h := &countingHandler{results: []error{errors.New("provider exploded")}}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", args)
		require.False(t, res.OK)
		assert.Equal(t, fault.CodeHandlerException, res.Err.Code)
		assert.Equal(t, fault.ClassPermanent, res.Err.Class, "an unknown handler failure must not be retried")
		assert.Equal(t, 1, h.calls)
		assert.Contains(t, res.Err.Error(), "provider exploded")
	})

	t.Run("panicking handler is contained", func(t *testing.T) {
		boom := tool.MustNew(tool.NewConfig().
			SetName("boom").
			SetParams(schema.Params{"q": schema.Required(schema.String("query"))}).
			SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
				panic("handler bug")
			}))
		m := NewManager(buildRegistry(t, boom))

		res := m.Execute(ctx, "boom", args)
		require.False(t, res.OK)
		assert.Equal(t, fault.CodeHandlerException, res.Err.Code)
		assert.Contains(t, res.Err.Message, "handler bug")
	})

	t.Run("transient read-only failure retried exactly once", func(t *testing.T) {
		transient := fault.New("lookup", "execute", fault.CodeNetwork, "connection reset")
		h := &countingHandler{value: "ok", results: []error{transient}}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", args)
		require.True(t, res.OK)
		assert.Equal(t, 2, h.calls)
	})

	t.Run("transient failure gives up after one retry", func(t *testing.T) {
		transient := fault.New("lookup", "execute", fault.CodeNetwork, "connection reset")
		h := &countingHandler{results: []error{transient, transient, transient}}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", args)
		require.False(t, res.OK)
		assert.Equal(t, fault.CodeNetwork, res.Err.Code)
		assert.Equal(t, 2, h.calls)
	})

	t.Run("mutating tool never retried", func(t *testing.T) {
		transient := fault.New("book", "execute", fault.CodeTimeout, "deadline exceeded")
		h := &countingHandler{results: []error{transient}}
		m := NewManager(buildRegistry(t, mutatingTool(t, "book", h)))

		res := m.Execute(ctx, "book", args)
		require.False(t, res.OK)
		assert.Equal(t, 1, h.calls, "a mutation must not be issued twice")
	})

	t.Run("permanent failure not retried", func(t *testing.T) {
		denied := fault.New("lookup", "execute", fault.CodePermission, "forbidden")
		h := &countingHandler{results: []error{denied, denied}}
		m := NewManager(buildRegistry(t, readOnlyTool(t, "lookup", h)))

		res := m.Execute(ctx, "lookup", args)
		require.False(t, res.OK)
		assert.Equal(t, 1, h.calls)
		assert.Equal(t, fault.ClassPermanent, res.Err.Class)
	})

	t.Run("intent path resolves then executes", func(t *testing.T) {
		h := &countingHandler{value: "booked"}
		book := tool.MustNew(tool.NewConfig().
			SetName("schedule_workout").
			SetMutating("I'll schedule that for you.").
			SetParams(schema.Params{
				"activity": schemaRequiredString("what to do"),
				"time":     schemaRequiredString("when to do it"),
			}).
			SetHandler(h.invoke))
		client := &scriptedClient{replies: []string{`{"activity": "yoga", "time": "6pm"}`}}
		m := NewManager(buildRegistry(t, book), WithResolver(NewResolver(client)))

		res, resolution := m.ExecuteIntent(ctx, "schedule_workout", "book yoga at 6", nil)
		require.True(t, res.OK)
		require.NotNil(t, resolution)
		assert.Equal(t, "booked", res.Value)
		assert.Equal(t, 1, h.calls)
	})

	t.Run("intent path surfaces follow-up instead of executing", func(t *testing.T) {
		h := &countingHandler{}
		book := tool.MustNew(tool.NewConfig().
			SetName("schedule_workout").
			SetParams(schema.Params{
				"activity": schemaRequiredString("what to do"),
				"time":     schemaRequiredString("when to do it"),
			}).
			SetHandler(h.invoke))
		client := &scriptedClient{replies: []string{`{"activity": "yoga"}`}}
		m := NewManager(buildRegistry(t, book), WithResolver(NewResolver(client)))

		res, resolution := m.ExecuteIntent(ctx, "schedule_workout", "book yoga", nil)
		require.False(t, res.OK)
		assert.Nil(t, res.Err)
		require.NotNil(t, resolution)
		assert.False(t, resolution.Complete())
		assert.Equal(t, 0, h.calls, "tool must not run on incomplete arguments")
	})

	t.Run("argument coercion happens before invoke", func(t *testing.T) {
		var got map[string]any
		echo := tool.MustNew(tool.NewConfig().
			SetName("echo").
			SetParams(schema.Params{"n": schema.Required(schema.Int("a number"))}).
			SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
				got = args
				return nil, nil
			}))
		m := NewManager(buildRegistry(t, echo))

		res := m.Execute(ctx, "echo", map[string]any{"n": "42"})
		require.True(t, res.OK)
		assert.Equal(t, int64(42), got["n"], "integers canonicalize to int64")
	})
}
