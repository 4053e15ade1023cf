package hive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/plugins"
)

func item(enable *bool, deps ...string) *conf.PluginItem {
	return &conf.PluginItem{Enable: enable, Dependencies: deps}
}

func on() *bool  { v := true; return &v }
func off() *bool { v := false; return &v }

func TestOrderPlugins_ImplicitEnable(t *testing.T) {
	var buf bytes.Buffer
	items := map[string]*conf.PluginItem{
		"api":   item(on(), "cache", "store"),
		"cache": item(nil, "store"),
		"store": item(off()),
		"idle":  item(nil),
	}

	order, err := OrderPlugins(items, log.NewLogger(log.Options{Writer: &buf, Level: log.DebugLevel}))
	require.NoError(t, err)
	assert.Equal(t, []string{"store", "cache", "api"}, order)

	assert.True(t, items["cache"].Enabled())
	assert.True(t, items["store"].Enabled())
	assert.False(t, items["idle"].Enabled())

	out := buf.String()
	assert.Contains(t, out, "Following plugins will be enabled implicitly.")
	assert.Contains(t, out, "cache required by [api]")
	assert.Contains(t, out, "that is disabled by application")
	assert.Contains(t, out, "store required by [cache, api]")
}

func TestOrderPlugins_RootsAreSorted(t *testing.T) {
	items := map[string]*conf.PluginItem{
		"zeta":  item(on()),
		"alpha": item(on()),
		"mid":   item(on(), "alpha"),
	}
	for i := 0; i < 5; i++ {
		order, err := OrderPlugins(items, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, order)
	}
}

func TestOrderPlugins_OptionalStaysDisabled(t *testing.T) {
	items := map[string]*conf.PluginItem{
		"api":     {Enable: on(), OptionalDependencies: []string{"metrics", "ghost"}},
		"metrics": item(nil),
	}
	order, err := OrderPlugins(items, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, order)
	assert.False(t, items["metrics"].Enabled())
}

func TestOrderPlugins_Missing(t *testing.T) {
	items := map[string]*conf.PluginItem{
		"api":    item(on(), "ghost"),
		"worker": item(off(), "ghost"),
	}
	order, err := OrderPlugins(items, nil)
	assert.Nil(t, order)

	var seqErr *plugins.SequenceError
	require.True(t, errors.As(err, &seqErr))
	require.Len(t, seqErr.Missing, 1)
	assert.Equal(t, "ghost", seqErr.Missing[0].Name)
	assert.Equal(t, []string{"api", "worker"}, seqErr.Missing[0].RequiredBy)
	assert.Contains(t, err.Error(), "Plugin [ghost] is disabled or missed, but is required by [api, worker]")
}

func TestOrderPlugins_Cycle(t *testing.T) {
	items := map[string]*conf.PluginItem{
		"a": item(on(), "b"),
		"b": item(nil, "a"),
	}
	_, err := OrderPlugins(items, nil)

	var seqErr *plugins.SequenceError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, [][]string{{"a", "b", "a"}}, seqErr.Cycles)
	assert.False(t, items["b"].Enabled())
}

func TestOrderPlugins_NothingEnabled(t *testing.T) {
	order, err := OrderPlugins(map[string]*conf.PluginItem{"a": item(nil)}, nil)
	assert.NoError(t, err)
	assert.Empty(t, order)
}

func TestOrderPlugins_InvalidInput(t *testing.T) {
	_, err := OrderPlugins(nil, nil)
	assert.Error(t, err)

	_, err = OrderPlugins(map[string]*conf.PluginItem{"a": nil}, nil)
	assert.ErrorIs(t, err, conf.ErrInvalidDependencies)

	_, err = OrderPlugins(map[string]*conf.PluginItem{"a": item(on(), " ")}, nil)
	assert.ErrorIs(t, err, conf.ErrInvalidDependencies)
}
