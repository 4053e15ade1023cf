package plugins

import (
	"context"

	klog "github.com/go-kratos/kratos/v2/log"

	"github.com/go-lynx/hive/log"
)

// BasePlugin supplies no-op lifecycle hooks and common accessors.
// Embed it by pointer and override only the hooks the plugin needs.
type BasePlugin struct {
	info Info
	rt   Runtime
	log  *klog.Helper
}

// NewBasePlugin creates a new BasePlugin for the given declaration.
func NewBasePlugin(info Info) *BasePlugin {
	return &BasePlugin{
		info: info,
		log:  log.NewHelper(nil, "plugin", info.Name),
	}
}

func (p *BasePlugin) Name() string { return p.info.Name }

func (p *BasePlugin) Alias() string {
	if p.info.Alias != "" {
		return p.info.Alias
	}
	return p.info.Name
}

// Info returns the declaration the plugin was built from.
func (p *BasePlugin) Info() Info { return p.info }

// BindRuntime records the runtime and rebinds the logger to it.
func (p *BasePlugin) BindRuntime(rt Runtime) {
	p.rt = rt
	if rt != nil && rt.Logger() != nil {
		p.log = log.NewHelper(rt.Logger(), "plugin", p.info.Name)
	}
}

// Runtime returns the bound runtime, nil before Init.
func (p *BasePlugin) Runtime() Runtime { return p.rt }

// Log returns the plugin scoped log helper.
func (p *BasePlugin) Log() *klog.Helper { return p.log }

// GetConfig scans the plugin configuration (CfgName, or Name) into v.
func (p *BasePlugin) GetConfig(ctx context.Context, v any) error {
	if p.rt == nil {
		return ErrPluginNotInitialized
	}
	name := p.info.CfgName
	if name == "" {
		name = p.info.Name
	}
	return p.rt.LoadConfig(ctx, name, v)
}

func (p *BasePlugin) Init(_ context.Context, rt Runtime) error {
	if p.rt == nil {
		p.BindRuntime(rt)
	}
	p.log.Debugf("[%s] not implement init", p.info.Name)
	return nil
}

func (p *BasePlugin) Start(context.Context) error {
	p.log.Debugf("[%s] not implement start", p.info.Name)
	return nil
}

func (p *BasePlugin) Stop(context.Context) error {
	p.log.Debugf("[%s] not implement stop", p.info.Name)
	return nil
}

func (p *BasePlugin) AfterInitAll(context.Context) error   { return nil }
func (p *BasePlugin) BeforeStartAll(context.Context) error { return nil }
func (p *BasePlugin) AfterStartAll(context.Context) error  { return nil }
func (p *BasePlugin) BeforeStopAll(context.Context) error  { return nil }
func (p *BasePlugin) AfterStopAll(context.Context) error   { return nil }
