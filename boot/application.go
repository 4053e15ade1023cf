// Package boot starts a hive application from the command line: it loads the
// configuration, builds the logger, runs the App and stops it on SIGINT or
// SIGTERM.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-lynx/hive"
	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/plugins"

	// Built-in plugins.
	_ "github.com/go-lynx/hive/plugins/mq"
	_ "github.com/go-lynx/hive/plugins/redis"
)

// Default shutdown settings.
const (
	DefaultForceExitTicks = 10
	DefaultForceExitTick  = time.Second
)

// ErrForcedExit is returned when Stop did not finish before the watchdog fired.
var ErrForcedExit = errors.New("forced exit: stop did not finish in time")

// Application wires the command line to a hive.App.
type Application struct {
	env  hive.Env
	opts []hive.Option

	// Flags.
	confPath  string
	msIP      string
	msPort    int
	msDisable bool

	forceExitTicks int
	forceExitTick  time.Duration
	exit           func(code int)
	signals        []os.Signal
	out            io.Writer

	app atomic.Pointer[hive.App]
}

// NewApplication creates an Application for env. opts are passed to hive.New.
func NewApplication(env hive.Env, opts ...hive.Option) *Application {
	return &Application{
		env:            env,
		opts:           opts,
		forceExitTicks: DefaultForceExitTicks,
		forceExitTick:  DefaultForceExitTick,
		exit:           os.Exit,
		out:            os.Stdout,
		signals:        []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// App returns the running app, nil before Serve initialized it.
func (a *Application) App() *hive.App { return a.app.Load() }

// Command returns the root command; its flags override env and the
// mservice section of the configuration.
func (a *Application) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           a.env.ServerID,
		Short:         a.env.Description,
		Version:       a.env.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), a.signals...)
			defer stop()
			return a.Serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&a.confPath, "conf", "c", GetConfigManager().GetConfigPath(), "config path, eg: --conf config.yaml")
	f.StringVar(&a.env.ServerID, "app-name", a.env.ServerID, "application name, the default service name")
	f.StringVar(&a.env.Env, "env", envOr("HIVE_ENV", "development"), "deployment environment")
	f.StringVar(&a.env.NodeName, "node-name", a.env.NodeName, "node name, default <ip>_<port>")
	f.StringVar(&a.msIP, "ms-ip", "", "advertised ip of this instance")
	f.IntVar(&a.msPort, "ms-port", 0, "advertised port of this instance")
	f.BoolVar(&a.msDisable, "ms-disable", false, "disable service registration and discovery")
	return cmd
}

// Run executes the root command with os.Args and exits non-zero on failure.
func (a *Application) Run() {
	if err := a.Command().Execute(); err != nil {
		var seqErr *plugins.SequenceError
		if errors.As(err, &seqErr) {
			fmt.Fprintln(os.Stderr, color.RedString(err.Error()))
		} else {
			log.Errorf("%v", err)
		}
		a.exit(1)
	}
}

// Serve initializes and starts the app, blocks until ctx is done, then stops
// it under the forced-exit watchdog.
func (a *Application) Serve(ctx context.Context) error {
	start := time.Now()
	cfg, err := LoadBootstrapConfig(a.confPath)
	if err != nil {
		return err
	}
	GetConfigManager().SetConfigPath(a.confPath)
	defer func() {
		if err := cfg.Close(); err != nil {
			log.Errorf("failed to close configuration: %v", err)
		}
	}()
	newLogger(cfg, a.env)
	if err := printBanner(a.out, cfg, a.confPath); err != nil {
		log.Warnf("%v", err)
	}
	log.Infof("%s application is starting up, env: %s", a.env.ServerID, a.env.Env)

	opts := append([]hive.Option{hive.WithLogger(log.GetLogger()), hive.WithOverrides(a.override)}, a.opts...)
	app, err := hive.New(a.env, cfg, opts...)
	if err != nil {
		return err
	}
	a.app.Store(app)

	runCtx := context.WithoutCancel(ctx)
	if err := app.Init(runCtx); err != nil {
		_ = a.stop()
		return err
	}
	if err := app.Start(runCtx); err != nil {
		_ = a.stop()
		return err
	}
	log.Infof("%s application started successfully, elapsed time: %s", a.env.ServerID, elapsed(time.Since(start)))

	<-ctx.Done()
	log.Infof("Shutdown signal received, stopping %s", a.env.ServerID)
	return a.stop()
}

func (a *Application) override(bc *conf.Bootstrap) {
	if a.msDisable {
		bc.MService.Enable = false
		return
	}
	if a.msIP != "" {
		bc.MService.IP = a.msIP
	}
	if a.msPort != 0 {
		bc.MService.Port = a.msPort
	}
}

// stop runs App.Stop and exits the process with code 1 if it has not
// returned after forceExitTicks ticks.
func (a *Application) stop() error {
	done := make(chan error, 1)
	go func() { done <- a.app.Load().Stop(context.Background()) }()

	ticker := time.NewTicker(a.forceExitTick)
	defer ticker.Stop()
	left := a.forceExitTicks
	for {
		select {
		case err := <-done:
			if err != nil {
				log.Errorf("stop: %v", err)
			}
			log.Info("Graceful shutdown completed")
			return err
		case <-ticker.C:
			left--
			log.Infof("--- wait exit %d", left)
			if left <= 0 {
				a.exit(1)
				return ErrForcedExit
			}
		}
	}
}

func elapsed(d time.Duration) string {
	switch ms := d.Milliseconds(); {
	case ms < 1000:
		return fmt.Sprintf("%d ms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.2f s", float64(ms)/1000)
	default:
		return fmt.Sprintf("%.2f m", float64(ms)/1000/60)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
