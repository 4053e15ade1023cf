package hive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-lynx/hive/plugins"
)

// Start runs the start family: BeforeStartAll, Start and AfterStartAll over
// the plugins in load order, with the components and the finder in between.
// The first error aborts.
func (a *App) Start(ctx context.Context) error {
	if err := a.hooks.OnBeforeStart(ctx); err != nil {
		return fmt.Errorf("on before start: %w", err)
	}
	if err := a.callPlugins(ctx, "beforeStartAll", false, false, plugins.Plugin.BeforeStartAll); err != nil {
		return err
	}
	if err := a.callPlugins(ctx, "start", false, false, plugins.Plugin.Start); err != nil {
		return err
	}
	if err := a.callComponents(ctx, "onStart", false, Component.OnStart); err != nil {
		return err
	}

	if err := a.finder.Start(ctx); err != nil {
		return fmt.Errorf("start finder: %w", err)
	}

	if err := a.callPlugins(ctx, "afterStartAll", false, false, plugins.Plugin.AfterStartAll); err != nil {
		return err
	}
	a.finder.AfterStartAll(ctx)
	if err := a.callComponents(ctx, "onAfterStartAll", false, Component.OnAfterStartAll); err != nil {
		return err
	}
	if err := a.hooks.OnAfterStart(ctx); err != nil {
		return fmt.Errorf("on after start: %w", err)
	}
	a.log.Infof("app [%s] started, %d plugins", a.env.ServerID, len(a.snapshot()))
	return nil
}

// Stop runs the stop family in reverse load order. The finder deregisters
// before any plugin stops. Every hook runs even when an earlier one failed;
// the failures are joined.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.hooks.OnBeforeStop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("on before stop: %w", err))
	}
	errs = append(errs, a.callPlugins(ctx, "beforeStopAll", true, true, plugins.Plugin.BeforeStopAll))
	errs = append(errs, a.callComponents(ctx, "onBeforeStop", true, Component.OnBeforeStop))

	if err := a.finder.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop finder: %w", err))
	}

	errs = append(errs, a.callPlugins(ctx, "stop", true, true, plugins.Plugin.Stop))
	errs = append(errs, a.callComponents(ctx, "onAfterStop", true, Component.OnAfterStop))
	errs = append(errs, a.callPlugins(ctx, "afterStopAll", true, true, plugins.Plugin.AfterStopAll))
	errs = append(errs, a.callComponents(ctx, "onAfterStopAll", true, Component.OnAfterStopAll))

	if err := a.hooks.OnAfterStop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("on after stop: %w", err))
	}
	return errors.Join(errs...)
}

// callPlugins runs fn over the loaded plugins, in reverse when desc is set.
// With keepGoing every plugin is called and the errors are joined; otherwise
// the first error is returned.
func (a *App) callPlugins(ctx context.Context, phase string, desc, keepGoing bool,
	fn func(plugins.Plugin, context.Context) error) error {
	loaded := a.snapshot()
	if desc {
		slices.Reverse(loaded)
	}

	var errs []error
	for _, lp := range loaded {
		p := lp.plugin
		err := a.observe(p.Name(), phase, func() error { return fn(p, ctx) })
		if err == nil {
			continue
		}
		a.log.Errorf("plugin [%s] %s err: %v", lp.key, phase, err)
		perr := plugins.NewPluginError(p.Name(), phase, "lifecycle hook failed", err)
		if !keepGoing {
			return perr
		}
		errs = append(errs, perr)
	}
	return errors.Join(errs...)
}

func (a *App) callComponents(ctx context.Context, phase string, keepGoing bool,
	fn func(Component, context.Context) error) error {
	var errs []error
	for _, c := range a.components() {
		if err := fn(c, ctx); err != nil {
			a.log.Errorf("comp [%s] %s err: %v", c.Name(), phase, err)
			err = fmt.Errorf("comp [%s] %s: %w", c.Name(), phase, err)
			if !keepGoing {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// observe times fn and counts its failure under plugin and phase.
func (a *App) observe(plugin, phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	pluginPhaseDuration.WithLabelValues(plugin, phase).Observe(time.Since(start).Seconds())
	if err != nil {
		pluginPhaseErrors.WithLabelValues(plugin, phase).Inc()
	}
	return err
}
