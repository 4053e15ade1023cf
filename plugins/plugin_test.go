package plugins

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/hive/finder"
)

type stubRuntime struct {
	loaded map[string]Plugin
}

func (s *stubRuntime) Logger() log.Logger                            { return log.DefaultLogger }
func (s *stubRuntime) Config() config.Config                         { return nil }
func (s *stubRuntime) LoadConfig(context.Context, string, any) error { return nil }
func (s *stubRuntime) Plugin(name string) Plugin                     { return s.loaded[name] }
func (s *stubRuntime) Finder() *finder.Finder                        { return nil }

type otherPlugin struct{ *BasePlugin }

func TestResolve(t *testing.T) {
	base := NewBasePlugin(Info{Name: "cache"})
	rt := &stubRuntime{loaded: map[string]Plugin{"cache": base}}

	p, err := Resolve[*BasePlugin](rt, "cache")
	require.NoError(t, err)
	assert.Same(t, base, p)

	_, err = Resolve[*BasePlugin](rt, "queue")
	assert.ErrorIs(t, err, ErrPluginNotFound)
	var perr *PluginError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "queue", perr.Plugin)
	assert.Equal(t, "resolve", perr.Operation)

	other, err := Resolve[*otherPlugin](rt, "cache")
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Nil(t, other)

	_, err = Resolve[*BasePlugin](nil, "cache")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}
