package hive

import (
	"context"

	"github.com/go-lynx/hive/conf"
)

// Hooks lets the application observe and adjust the App lifecycle.
// Embed NopHooks and override what is needed.
type Hooks interface {
	// OnBeforeInit runs before configuration is read.
	OnBeforeInit(ctx context.Context) error
	// OnCfgLoad runs once the bootstrap configuration is scanned and
	// normalized; bc may be modified in place.
	OnCfgLoad(ctx context.Context, bc *conf.Bootstrap) error
	// OnAfterInit runs after every plugin finished AfterInitAll, before
	// components are initialized.
	OnAfterInit(ctx context.Context, app *App) error
	OnBeforeStart(ctx context.Context) error
	// OnAfterStart runs once everything, the finder included, has started.
	OnAfterStart(ctx context.Context) error
	OnBeforeStop(ctx context.Context) error
	// OnAfterStop runs after the framework and all plugins are stopped.
	OnAfterStop(ctx context.Context) error
	// AppMetaInfo is merged into the metadata of the registered instance.
	AppMetaInfo() map[string]any
}

// NopHooks implements Hooks with no-ops.
type NopHooks struct{}

func (NopHooks) OnBeforeInit(context.Context) error               { return nil }
func (NopHooks) OnCfgLoad(context.Context, *conf.Bootstrap) error { return nil }
func (NopHooks) OnAfterInit(context.Context, *App) error          { return nil }
func (NopHooks) OnBeforeStart(context.Context) error              { return nil }
func (NopHooks) OnAfterStart(context.Context) error               { return nil }
func (NopHooks) OnBeforeStop(context.Context) error               { return nil }
func (NopHooks) OnAfterStop(context.Context) error                { return nil }
func (NopHooks) AppMetaInfo() map[string]any                      { return nil }
