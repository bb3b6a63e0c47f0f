package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/schema"
)

func echoTool(t *testing.T, name string) Tool {
	t.Helper()
	tl, err := New(NewConfig().
		SetName(name).
		SetDescription("echoes its arguments").
		SetParams(schema.Params{"text": schema.Required(schema.String("text to echo"))}).
		SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		}))
	require.NoError(t, err)
	return tl
}

func provider(tools ...Tool) Provider {
	return ProviderFunc(func() []Tool { return tools })
}

func TestDiscover(t *testing.T) {
	t.Run("collects tools from all providers", func(t *testing.T) {
		reg, err := Discover(
			provider(echoTool(t, "echo")),
			provider(echoTool(t, "shout"), echoTool(t, "whisper")),
		)
		require.NoError(t, err)
		assert.Equal(t, 3, reg.Len())

		_, ok := reg.Get("shout")
		assert.True(t, ok)
	})

	t.Run("name collision aborts with nothing registered", func(t *testing.T) {
		reg, err := Discover(
			provider(echoTool(t, "echo")),
			provider(echoTool(t, "echo")),
		)
		require.ErrorIs(t, err, ErrNameCollision)
		assert.Contains(t, err.Error(), "echo")
		assert.Contains(t, err.Error(), "nothing registered")
		assert.Nil(t, reg)
	})

	t.Run("unnamed tool rejected", func(t *testing.T) {
		bad := &builtTool{desc: Descriptor{Name: "  "}, handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		}}
		reg, err := Discover(provider(bad))
		require.Error(t, err)
		assert.Nil(t, reg)
	})

	t.Run("empty discovery yields empty registry", func(t *testing.T) {
		reg, err := Discover()
		require.NoError(t, err)
		assert.Equal(t, 0, reg.Len())
		assert.Empty(t, reg.List())
	})
}

func TestRegistryList(t *testing.T) {
	reg, err := Discover(provider(echoTool(t, "zeta"), echoTool(t, "alpha")))
	require.NoError(t, err)

	descs := reg.List()
	require.Len(t, descs, 2)
	assert.Equal(t, "alpha", descs[0].Name)
	assert.Equal(t, "zeta", descs[1].Name)
}

func TestRegistryInvoke(t *testing.T) {
	reg, err := Discover(provider(echoTool(t, "echo")))
	require.NoError(t, err)

	out, err := reg.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = reg.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryCatalog(t *testing.T) {
	reg, err := Discover(provider(echoTool(t, "echo")))
	require.NoError(t, err)

	catalog := reg.Catalog()
	assert.Contains(t, catalog, "echo: echoes its arguments")
	assert.Contains(t, catalog, "args: text")
}

func TestBuilder(t *testing.T) {
	t.Run("requires name", func(t *testing.T) {
		_, err := New(NewConfig().SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		}))
		require.Error(t, err)
	})

	t.Run("requires handler", func(t *testing.T) {
		_, err := New(NewConfig().SetName("noop"))
		require.Error(t, err)
	})

	t.Run("nil config rejected", func(t *testing.T) {
		_, err := New(nil)
		require.Error(t, err)
	})

	t.Run("mutating tool carries confirmation", func(t *testing.T) {
		tl, err := New(NewConfig().
			SetName("schedule_workout").
			SetMutating("I'll schedule that for you.").
			SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
				return nil, nil
			}))
		require.NoError(t, err)

		desc := tl.Descriptor()
		assert.Equal(t, Mutating, desc.SideEffect)
		assert.Equal(t, "I'll schedule that for you.", desc.Confirmation)
	})

	t.Run("defaults to read-only", func(t *testing.T) {
		desc := echoTool(t, "echo").Descriptor()
		assert.Equal(t, ReadOnly, desc.SideEffect)
		assert.Empty(t, desc.Confirmation)
	})
}

func TestHandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	tl, err := New(NewConfig().
		SetName("broken").
		SetHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, boom
		}))
	require.NoError(t, err)

	reg, err := Discover(provider(tl))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "broken", nil)
	assert.ErrorIs(t, err, boom)
}
