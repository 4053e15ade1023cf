package hive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-kratos/kratos/v2/config"
	klog "github.com/go-kratos/kratos/v2/log"

	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/finder"
	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/pkg/netx"
	"github.com/go-lynx/hive/plugins"
)

// ErrConfigNotFound is returned by LoadConfig when no source holds the name.
var ErrConfigNotFound = errors.New("config not found")

var (
	current   *App
	currentMu sync.RWMutex
)

// Current returns the most recently created App, or nil.
func Current() *App {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

var _ plugins.Runtime = (*App)(nil)

// App hosts the plugins, components and finder of one process and drives
// them through init, start and stop.
type App struct {
	env        Env
	cfg        config.Config
	bc         *conf.Bootstrap
	logger     klog.Logger
	log        *klog.Helper
	hooks      Hooks
	finder     *finder.Finder
	finderOpts []finder.Option
	overrides  []func(*conf.Bootstrap)

	mu      sync.RWMutex
	loaded  []loadedPlugin
	byKey   map[string]plugins.Plugin
	byName  map[string]plugins.Plugin
	comps   []Component
	compIdx map[string]Component
}

// loadedPlugin is a plugin instance with the key it is stored under: its
// alias, or "_<name>" when no alias is configured.
type loadedPlugin struct {
	key    string
	plugin plugins.Plugin
}

// Option configures an App.
type Option func(*App)

func WithHooks(h Hooks) Option {
	return func(a *App) { a.hooks = h }
}

func WithLogger(l klog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithFinderOptions is passed through to finder.New.
func WithFinderOptions(opts ...finder.Option) Option {
	return func(a *App) { a.finderOpts = append(a.finderOpts, opts...) }
}

// WithOverrides adjusts the bootstrap configuration after OnCfgLoad and
// before the finder connects.
func WithOverrides(fns ...func(*conf.Bootstrap)) Option {
	return func(a *App) { a.overrides = append(a.overrides, fns...) }
}

// WithComponents registers components; a duplicate name makes New fail.
func WithComponents(cs ...Component) Option {
	return func(a *App) { a.comps = append(a.comps, cs...) }
}

// New creates an App over cfg. Configuration is read by Init.
func New(env Env, cfg config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	a := &App{
		env:     env,
		cfg:     cfg,
		hooks:   NopHooks{},
		byKey:   make(map[string]plugins.Plugin),
		byName:  make(map[string]plugins.Plugin),
		compIdx: make(map[string]Component),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.GetLogger()
	}
	a.log = log.NewHelper(a.logger, "module", "app")
	a.finder = finder.New(a.logger, a.finderOpts...)

	comps := a.comps
	a.comps = nil
	for _, c := range comps {
		if err := a.AddComponent(c); err != nil {
			return nil, err
		}
	}

	currentMu.Lock()
	current = a
	currentMu.Unlock()
	return a, nil
}

// AddComponent registers c. Components must be added before Init.
func (a *App) AddComponent(c Component) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.compIdx[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrComponentExists, c.Name())
	}
	a.compIdx[c.Name()] = c
	a.comps = append(a.comps, c)
	return nil
}

// Init reads the bootstrap configuration, connects the finder, then loads
// and initializes the plugins in dependency order, and finally the
// components. Any failure is fatal to the app.
func (a *App) Init(ctx context.Context) error {
	if err := a.hooks.OnBeforeInit(ctx); err != nil {
		return fmt.Errorf("on before init: %w", err)
	}

	bc := &conf.Bootstrap{}
	if err := a.cfg.Value(conf.RootKey).Scan(bc); err != nil {
		return fmt.Errorf("load %s config: %w", conf.RootKey, err)
	}
	if a.env.NodeName != "" {
		bc.NodeName = a.env.NodeName
	}
	unnamed := bc.NodeName == ""
	bc.Normalize(netx.LocalIP())
	if unnamed {
		a.log.Infof("nodeName not set, use: %s", bc.NodeName)
	}
	a.env.NodeName = bc.NodeName
	a.bc = bc

	if err := a.hooks.OnCfgLoad(ctx, bc); err != nil {
		return fmt.Errorf("on cfg load: %w", err)
	}
	for _, fn := range a.overrides {
		fn(bc)
	}

	if bc.MService.Enable {
		if err := a.finder.Init(ctx, bc.MService.Finder, a.identity()); err != nil {
			return fmt.Errorf("init finder: %w", err)
		}
	}

	order, err := OrderPlugins(bc.Plugins, a.logger)
	if err != nil {
		return err
	}
	if err := a.loadPlugins(ctx, order); err != nil {
		return err
	}
	if err := a.callPlugins(ctx, "afterInitAll", false, false, plugins.Plugin.AfterInitAll); err != nil {
		return err
	}

	if err := a.hooks.OnAfterInit(ctx, a); err != nil {
		return fmt.Errorf("on after init: %w", err)
	}

	for _, c := range a.components() {
		if err := c.OnInit(ctx, a); err != nil {
			return fmt.Errorf("comp [%s] init: %w", c.Name(), err)
		}
	}
	return nil
}

func (a *App) identity() finder.Identity {
	meta := make(map[string]any, len(a.bc.Meta))
	maps.Copy(meta, a.bc.Meta)
	maps.Copy(meta, a.hooks.AppMetaInfo())
	return finder.Identity{
		ServerID: a.env.ServerID,
		NodeName: a.bc.NodeName,
		IP:       a.bc.MService.IP,
		Port:     a.bc.MService.Port,
		CfgKey:   a.env.RdCfgKey(),
		Meta:     meta,
	}
}

// loadPlugins instantiates every plugin of order and runs its Init. A plugin
// whose factory is not registered is skipped; an Init failure aborts.
func (a *App) loadPlugins(ctx context.Context, order []string) error {
	for _, name := range order {
		item := a.bc.Plugins[name]
		key := "_" + name
		if item.Alias != "" {
			key = item.Alias
		}

		factory, err := plugins.Lookup(item.PackageOr(name))
		if err != nil {
			a.log.Errorf("load plugin [%s] err: %v", name, err)
			continue
		}
		p, err := factory(plugins.Info{
			Name:    name,
			Alias:   key,
			Package: item.PackageOr(name),
			CfgName: item.CfgName,
		})
		if err != nil {
			return plugins.NewPluginError(name, "create", "factory failed", err)
		}

		a.mu.Lock()
		if _, dup := a.byKey[key]; dup {
			a.mu.Unlock()
			return plugins.NewPluginError(name, "load", "alias "+key+" is taken", plugins.ErrPluginAlreadyExists)
		}
		a.byKey[key] = p
		a.byName["_"+name] = p
		a.loaded = append(a.loaded, loadedPlugin{key: key, plugin: p})
		a.mu.Unlock()
		loadedPlugins.Inc()

		if b, ok := p.(plugins.RuntimeBinder); ok {
			b.BindRuntime(a)
		}
		if err := a.observe(name, "init", func() error { return p.Init(ctx, a) }); err != nil {
			a.log.Errorf("plugin [%s] init err: %v", key, err)
			return plugins.NewPluginError(name, "init", "plugin init failed", err)
		}
		a.log.Infof("plugin [%s] init ok", key)
	}
	return nil
}

// Plugin looks a plugin up by its stored key, then by "_<name>".
func (a *App) Plugin(name string) plugins.Plugin {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if p, ok := a.byKey[name]; ok {
		return p
	}
	if p, ok := a.byKey["_"+name]; ok {
		return p
	}
	return a.byName["_"+name]
}

// Component returns the component registered under name, or nil.
func (a *App) Component(name string) Component {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.compIdx[name]
}

// Order returns the plugin names in load order.
func (a *App) Order() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.loaded))
	for _, lp := range a.loaded {
		names = append(names, lp.plugin.Name())
	}
	return names
}

func (a *App) Env() Env                   { return a.env }
func (a *App) Config() config.Config      { return a.cfg }
func (a *App) Logger() klog.Logger        { return a.logger }
func (a *App) Finder() *finder.Finder     { return a.finder }
func (a *App) Bootstrap() *conf.Bootstrap { return a.bc }

// GetConfig returns the named configuration as JSON.
//
// With finder config distribution enabled the finder is the only source: a
// name listed in config.dependencies comes from the preloaded cache, anything
// else is read from the store. Otherwise the local configuration value is
// used. A missing name yields nil.
func (a *App) GetConfig(ctx context.Context, name string) json.RawMessage {
	if a.distributed() {
		var raw json.RawMessage
		if slices.Contains(a.bc.MService.Finder.Config.Dependencies, name) {
			raw, _ = a.finder.Dependency(name)
		}
		if raw == nil {
			raw = a.finder.GetConfig(ctx, name)
		}
		if raw == nil {
			a.log.Errorf("Can't find config %s from finder", name)
		}
		return raw
	}

	var v any
	if err := a.cfg.Value(name).Scan(&v); err != nil {
		a.log.Errorf("config [%s] load error: %v", name, err)
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		a.log.Errorf("config [%s] load error: %v", name, err)
		return nil
	}
	return raw
}

// LoadConfig decodes the named configuration into v from the same sources as
// GetConfig.
func (a *App) LoadConfig(ctx context.Context, name string, v any) error {
	if !a.distributed() {
		return a.cfg.Value(name).Scan(v)
	}
	raw := a.GetConfig(ctx, name)
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	return json.Unmarshal(raw, v)
}

func (a *App) distributed() bool {
	return a.bc != nil && a.bc.MService.ConfigDistributionEnabled() && a.finder.Enabled()
}

func (a *App) components() []Component {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.comps)
}

func (a *App) snapshot() []loadedPlugin {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.loaded)
}
