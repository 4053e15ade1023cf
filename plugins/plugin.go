// Package plugins provides the plugin contract for hive applications.
//
// A plugin is constructed by a registered Factory, handed a Runtime during
// Init, and then driven through the application lifecycle hooks in the order
// computed by Sequence. Every hook has a no-op default in BasePlugin, so a
// plugin only implements what it needs.
package plugins

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/go-lynx/hive/finder"
)

// Plugin is the lifecycle contract every plugin satisfies.
// Ascending hooks run in load order; the stop family runs in reverse.
type Plugin interface {
	// Name returns the configuration key the plugin was loaded under.
	Name() string
	// Alias returns the lookup name, defaulting to Name.
	Alias() string

	Init(ctx context.Context, rt Runtime) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	AfterInitAll(ctx context.Context) error
	BeforeStartAll(ctx context.Context) error
	AfterStartAll(ctx context.Context) error
	BeforeStopAll(ctx context.Context) error
	AfterStopAll(ctx context.Context) error
}

// Runtime is the host environment a plugin sees.
type Runtime interface {
	// Logger returns the application logger.
	Logger() log.Logger
	// Config returns the application configuration.
	Config() config.Config
	// LoadConfig scans the named configuration into v. The finder's config
	// distribution is consulted first when enabled, then local configuration.
	LoadConfig(ctx context.Context, name string, v any) error
	// Plugin looks a loaded plugin up by alias or name. Returns nil if absent.
	Plugin(name string) Plugin
	// Finder returns the service discovery facade; never nil.
	Finder() *finder.Finder
}

// Resolve returns the plugin loaded under name as a T. It fails with
// ErrPluginNotFound when nothing is loaded under name or the plugin has
// another type.
func Resolve[T Plugin](rt Runtime, name string) (T, error) {
	var zero T
	if rt == nil {
		return zero, NewPluginError(name, "resolve", "no runtime", ErrPluginNotFound)
	}
	p, ok := rt.Plugin(name).(T)
	if !ok {
		return zero, NewPluginError(name, "resolve", fmt.Sprintf("not loaded as %T", zero), ErrPluginNotFound)
	}
	return p, nil
}

// Info describes how a plugin was declared in configuration.
type Info struct {
	Name    string
	Alias   string
	Package string
	CfgName string
}

// RuntimeBinder is implemented by plugins embedding BasePlugin; the host binds
// the runtime before calling Init so overriding Init does not lose it.
type RuntimeBinder interface {
	BindRuntime(rt Runtime)
}
