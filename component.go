package hive

import (
	"context"
	"errors"
)

// ErrComponentExists is returned when two components share a name.
var ErrComponentExists = errors.New("component already exists")

// Component is application code driven alongside the plugins. Components are
// initialized after all plugins and run their hooks in registration order.
type Component interface {
	Name() string
	OnInit(ctx context.Context, app *App) error
	OnStart(ctx context.Context) error
	OnAfterStartAll(ctx context.Context) error
	OnBeforeStop(ctx context.Context) error
	OnAfterStop(ctx context.Context) error
	OnAfterStopAll(ctx context.Context) error
}

// BaseComponent implements Component with no-ops.
type BaseComponent struct {
	name string
}

func NewBaseComponent(name string) BaseComponent {
	return BaseComponent{name: name}
}

func (c BaseComponent) Name() string                        { return c.name }
func (BaseComponent) OnInit(context.Context, *App) error    { return nil }
func (BaseComponent) OnStart(context.Context) error         { return nil }
func (BaseComponent) OnAfterStartAll(context.Context) error { return nil }
func (BaseComponent) OnBeforeStop(context.Context) error    { return nil }
func (BaseComponent) OnAfterStop(context.Context) error     { return nil }
func (BaseComponent) OnAfterStopAll(context.Context) error  { return nil }
