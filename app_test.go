package hive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/plugins"
)

const recorderPackage = "hive.test.recorder"

// journal records lifecycle calls across plugins, components and hooks.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, a ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, a...))
}

func (j *journal) take() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.entries
	j.entries = nil
	return out
}

var calls = &journal{}

type recorderConfig struct {
	Limit int    `json:"limit"`
	Fail  string `json:"fail"`
}

type recorderPlugin struct {
	*plugins.BasePlugin
	cfg recorderConfig
}

func (p *recorderPlugin) hook(phase string) error {
	calls.add("%s:%s", p.Name(), phase)
	if p.cfg.Fail == phase {
		return errors.New(phase + " exploded")
	}
	return nil
}

func (p *recorderPlugin) Init(ctx context.Context, _ plugins.Runtime) error {
	_ = p.GetConfig(ctx, &p.cfg)
	return p.hook("init")
}

func (p *recorderPlugin) Start(context.Context) error          { return p.hook("start") }
func (p *recorderPlugin) Stop(context.Context) error           { return p.hook("stop") }
func (p *recorderPlugin) AfterInitAll(context.Context) error   { return p.hook("afterInitAll") }
func (p *recorderPlugin) BeforeStartAll(context.Context) error { return p.hook("beforeStartAll") }
func (p *recorderPlugin) AfterStartAll(context.Context) error  { return p.hook("afterStartAll") }
func (p *recorderPlugin) BeforeStopAll(context.Context) error  { return p.hook("beforeStopAll") }
func (p *recorderPlugin) AfterStopAll(context.Context) error   { return p.hook("afterStopAll") }

func init() {
	plugins.Register(recorderPackage, func(info plugins.Info) (plugins.Plugin, error) {
		return &recorderPlugin{BasePlugin: plugins.NewBasePlugin(info)}, nil
	})
}

type recorderHooks struct {
	NopHooks
	meta map[string]any
}

func (recorderHooks) OnBeforeInit(context.Context) error { calls.add("hooks:beforeInit"); return nil }
func (recorderHooks) OnCfgLoad(_ context.Context, bc *conf.Bootstrap) error {
	calls.add("hooks:cfgLoad:%s", bc.NodeName)
	return nil
}
func (recorderHooks) OnAfterInit(context.Context, *App) error { calls.add("hooks:afterInit"); return nil }
func (recorderHooks) OnBeforeStart(context.Context) error     { calls.add("hooks:beforeStart"); return nil }
func (recorderHooks) OnAfterStart(context.Context) error      { calls.add("hooks:afterStart"); return nil }
func (recorderHooks) OnBeforeStop(context.Context) error      { calls.add("hooks:beforeStop"); return nil }
func (recorderHooks) OnAfterStop(context.Context) error       { calls.add("hooks:afterStop"); return nil }
func (h recorderHooks) AppMetaInfo() map[string]any           { return h.meta }

type recorderComponent struct {
	BaseComponent
}

func (c recorderComponent) OnInit(_ context.Context, app *App) error {
	calls.add("comp:init:%t", app.Plugin("store") != nil)
	return nil
}
func (recorderComponent) OnStart(context.Context) error         { calls.add("comp:start"); return nil }
func (recorderComponent) OnAfterStartAll(context.Context) error { calls.add("comp:afterStartAll"); return nil }
func (recorderComponent) OnBeforeStop(context.Context) error    { calls.add("comp:beforeStop"); return nil }
func (recorderComponent) OnAfterStop(context.Context) error     { calls.add("comp:afterStop"); return nil }
func (recorderComponent) OnAfterStopAll(context.Context) error  { calls.add("comp:afterStopAll"); return nil }

func loadConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	c := config.New(config.WithSource(file.NewSource(path)))
	require.NoError(t, c.Load())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

const threePlugins = `
hive:
  nodeName: node-a
  plugins:
    api:
      enable: true
      package: hive.test.recorder
      alias: web
      dependencies: [cache]
    cache:
      package: hive.test.recorder
      dependencies: [store]
    store:
      enable: true
      package: hive.test.recorder
store:
  limit: 5
`

func TestApp_Lifecycle(t *testing.T) {
	calls.take()
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, threePlugins),
		WithHooks(recorderHooks{}),
		WithComponents(recorderComponent{NewBaseComponent("audit")}))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, app.Init(ctx))
	assert.Equal(t, []string{
		"hooks:beforeInit", "hooks:cfgLoad:node-a",
		"store:init", "cache:init", "api:init",
		"store:afterInitAll", "cache:afterInitAll", "api:afterInitAll",
		"hooks:afterInit", "comp:init:true",
	}, calls.take())
	assert.Equal(t, []string{"store", "cache", "api"}, app.Order())
	assert.True(t, app.Bootstrap().Plugins["cache"].Enabled())

	require.NoError(t, app.Start(ctx))
	assert.Equal(t, []string{
		"hooks:beforeStart",
		"store:beforeStartAll", "cache:beforeStartAll", "api:beforeStartAll",
		"store:start", "cache:start", "api:start",
		"comp:start",
		"store:afterStartAll", "cache:afterStartAll", "api:afterStartAll",
		"comp:afterStartAll", "hooks:afterStart",
	}, calls.take())

	require.NoError(t, app.Stop(ctx))
	assert.Equal(t, []string{
		"hooks:beforeStop",
		"api:beforeStopAll", "cache:beforeStopAll", "store:beforeStopAll",
		"comp:beforeStop",
		"api:stop", "cache:stop", "store:stop",
		"comp:afterStop",
		"api:afterStopAll", "cache:afterStopAll", "store:afterStopAll",
		"comp:afterStopAll", "hooks:afterStop",
	}, calls.take())
}

func TestApp_PluginLookupAndConfig(t *testing.T) {
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, threePlugins))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	assert.Same(t, app, Current())

	api := app.Plugin("web")
	require.NotNil(t, api)
	assert.Equal(t, "api", api.Name())
	assert.Equal(t, "web", api.Alias())
	assert.Same(t, api, app.Plugin("api"))

	store := app.Plugin("store")
	require.NotNil(t, store)
	assert.Same(t, store, app.Plugin("_store"))
	assert.Equal(t, 5, store.(*recorderPlugin).cfg.Limit)
	assert.Nil(t, app.Plugin("ghost"))

	assert.JSONEq(t, `{"limit":5}`, string(app.GetConfig(context.Background(), "store")))
	assert.Nil(t, app.GetConfig(context.Background(), "missing"))
	assert.Equal(t, "cfg:demo:node-a", app.Env().RdCfgKey())
}

func TestApp_DefaultNodeName(t *testing.T) {
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, `
hive:
  mservice:
    ip: 10.1.2.3
    port: 8080
`))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, "10.1.2.3_8080", app.Bootstrap().NodeName)
	assert.Empty(t, app.Order())

	overridden, err := New(Env{ServerID: "demo", NodeName: "cli"}, loadConfig(t, `hive: {nodeName: cfg}`))
	require.NoError(t, err)
	require.NoError(t, overridden.Init(context.Background()))
	assert.Equal(t, "cli", overridden.Env().NodeName)
}

func TestApp_InitFailureIsFatal(t *testing.T) {
	calls.take()
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, `
hive:
  plugins:
    first:
      enable: true
      package: hive.test.recorder
    second:
      enable: true
      package: hive.test.recorder
      dependencies: [first]
first:
  fail: init
`))
	require.NoError(t, err)

	err = app.Init(context.Background())
	var perr *plugins.PluginError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "first", perr.Plugin)
	assert.Equal(t, "init", perr.Operation)
	assert.Equal(t, []string{"first:init"}, calls.take())
}

func TestApp_SequenceErrorAbortsInit(t *testing.T) {
	calls.take()
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, `
hive:
  plugins:
    api:
      enable: true
      package: hive.test.recorder
      dependencies: [ghost]
`))
	require.NoError(t, err)

	var seqErr *plugins.SequenceError
	require.True(t, errors.As(app.Init(context.Background()), &seqErr))
	assert.Empty(t, calls.take())
}

func TestApp_UnknownPackageIsSkipped(t *testing.T) {
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, `
hive:
  plugins:
    api:
      enable: true
      package: hive.test.recorder
    legacy:
      enable: true
      package: hive.test.absent
`))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, []string{"api"}, app.Order())
	assert.Nil(t, app.Plugin("legacy"))
}

func TestApp_StopRunsEveryHook(t *testing.T) {
	calls.take()
	app, err := New(Env{ServerID: "demo"}, loadConfig(t, `
hive:
  plugins:
    a:
      enable: true
      package: hive.test.recorder
    b:
      enable: true
      package: hive.test.recorder
b:
  fail: stop
`))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, app.Init(ctx))
	require.NoError(t, app.Start(ctx))
	calls.take()

	err = app.Stop(ctx)
	var perr *plugins.PluginError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "b", perr.Plugin)
	assert.Equal(t, []string{
		"b:beforeStopAll", "a:beforeStopAll",
		"b:stop", "a:stop",
		"b:afterStopAll", "a:afterStopAll",
	}, calls.take())
}

func TestApp_DuplicateComponent(t *testing.T) {
	_, err := New(Env{}, loadConfig(t, `hive: {}`), WithComponents(
		NewBaseComponent("audit"), NewBaseComponent("audit")))
	assert.ErrorIs(t, err, ErrComponentExists)

	_, err = New(Env{}, nil)
	assert.Error(t, err)
}

func TestApp_FinderConfigDistribution(t *testing.T) {
	mr := miniredis.RunT(t)
	groupCfg := "nfinder:public:DEFAULT_GROUP:cfg"
	mr.DB(1).HSet(groupCfg, "store", `{"limit":9}`)
	mr.DB(1).HSet(groupCfg, "cache", `{"limit":3}`)

	app, err := New(Env{ServerID: "demo"}, loadConfig(t, fmt.Sprintf(`
hive:
  nodeName: node-a
  plugins:
    store:
      enable: true
      package: hive.test.recorder
    cache:
      enable: true
      package: hive.test.recorder
  mservice:
    enable: true
    ip: 10.0.0.7
    port: 9000
    finder:
      enable: true
      base:
        redis:
          addr: %s
      naming:
        enable: true
      config:
        enable: true
        dependencies: [store]
store:
  limit: 1
`, mr.Addr())), WithHooks(recorderHooks{meta: map[string]any{"zone": "eu"}}))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, app.Init(ctx))
	t.Cleanup(func() { _ = app.Stop(ctx) })

	assert.True(t, app.Finder().Enabled())
	assert.Equal(t, 9, app.Plugin("store").(*recorderPlugin).cfg.Limit)
	assert.Equal(t, 3, app.Plugin("cache").(*recorderPlugin).cfg.Limit)

	mr.DB(1).HSet(groupCfg, "store", `{"limit":12}`)
	assert.JSONEq(t, `{"limit":9}`, string(app.GetConfig(ctx, "store")))
	assert.Nil(t, app.GetConfig(ctx, "absent"))
	assert.ErrorIs(t, app.LoadConfig(ctx, "absent", &recorderConfig{}), ErrConfigNotFound)

	hosts := app.Finder().GetService(ctx, "demo")
	require.Len(t, hosts, 1)
	assert.Equal(t, "demo@10.0.0.7@9000", hosts[0].InstanceID)
	assert.Equal(t, "node-a", hosts[0].Metadata.NodeName)
	assert.Equal(t, "cfg:demo:node-a", hosts[0].Metadata.RdCfgKey)
	assert.Equal(t, "eu", hosts[0].Metadata.Extra["zone"])
}
