// Package redis is the built-in redis plugin. It opens the named instances of
// its configuration and shares one connection between instances that point
// at the same host, port and db.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/go-lynx/hive/plugins"
)

// PluginName is the package the plugin registers under.
const PluginName = "redis"

var (
	// ErrNoConfig is returned by Init when the plugin has no instances.
	ErrNoConfig = errors.New("redis config not found")
	// ErrInstanceExists is returned when a name is taken by another connection.
	ErrInstanceExists = errors.New("redis instance already exists")
)

func init() {
	plugins.Register(PluginName, func(info plugins.Info) (plugins.Plugin, error) {
		return New(info), nil
	})
}

// pool is one family of connections: by instance name and by address key.
type pool struct {
	kind   string
	byName map[string]*redis.Client
	byKey  map[string]*redis.Client
}

func newPool(kind string) *pool {
	return &pool{
		kind:   kind,
		byName: make(map[string]*redis.Client),
		byKey:  make(map[string]*redis.Client),
	}
}

// Plugin holds the redis connections of the application. Subscriber
// connections are kept apart from command connections.
type Plugin struct {
	*plugins.BasePlugin

	mu     sync.RWMutex
	cfg    Config
	normal *pool
	sub    *pool
}

// New creates an unconfigured plugin.
func New(info plugins.Info) *Plugin {
	return &Plugin{
		BasePlugin: plugins.NewBasePlugin(info),
		normal:     newPool("normal"),
		sub:        newPool("sub"),
	}
}

// FromRuntime returns the loaded redis plugin, or nil.
func FromRuntime(rt plugins.Runtime) *Plugin {
	p, _ := plugins.Resolve[*Plugin](rt, PluginName)
	return p
}

// Init opens every configured instance.
func (p *Plugin) Init(ctx context.Context, _ plugins.Runtime) error {
	var cfg Config
	if err := p.GetConfig(ctx, &cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConfig, err)
	}
	if len(cfg.Instance) == 0 {
		return ErrNoConfig
	}

	names := make([]string, 0, len(cfg.Instance))
	for name := range cfg.Instance {
		names = append(names, name)
	}
	sort.Strings(names)
	if _, ok := cfg.Instance[cfg.Default]; !ok {
		cfg.Default = names[0]
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()

	for _, name := range names {
		if _, err := p.Instance(ctx, name, cfg.Instance[name], false); err != nil {
			return err
		}
	}
	return nil
}

// Instance returns the connection for name, opening it when no connection to
// the same address exists yet. Subscriber connections (sub) live in their own
// pool. A name already bound to a different address is an error.
func (p *Plugin) Instance(ctx context.Context, name string, ins Instance, sub bool) (*redis.Client, error) {
	p.mu.Lock()
	pl := p.normal
	if sub {
		pl = p.sub
	}
	key := ins.Key()
	if c, ok := pl.byKey[key]; ok {
		pl.byName[name] = c
		p.mu.Unlock()
		redisReuseTotal.WithLabelValues(pl.kind).Inc()
		p.Log().Infof("reuse %s redis: %s", pl.kind, key)
		return c, nil
	}
	if _, ok := pl.byName[name]; ok {
		p.mu.Unlock()
		p.Log().Warnf("redis %s [ %s ] instance has exist!", pl.kind, name)
		return nil, fmt.Errorf("%w: %s %s", ErrInstanceExists, pl.kind, name)
	}
	p.mu.Unlock()

	c, err := p.open(ctx, name, ins)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another caller may have opened the same address meanwhile.
	if existing, ok := pl.byKey[key]; ok {
		_ = c.Close()
		c = existing
	}
	pl.byKey[key] = c
	pl.byName[name] = c
	if !sub && p.cfg.Default == "" {
		p.cfg.Default = name
	}
	return c, nil
}

func (p *Plugin) open(ctx context.Context, name string, ins Instance) (*redis.Client, error) {
	redisStartupTotal.Inc()
	c := redis.NewClient(ins.Options())
	c.AddHook(metricsHook{})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = ins.connectTimeout()

	start := time.Now()
	op := func() error { return c.Ping(ctx).Err() }
	notify := func(err error, next time.Duration) {
		p.Log().Warnf("redis %s is reconnecting in %s: %v", name, next, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		_ = c.Close()
		redisStartupFailedTotal.Inc()
		return nil, plugins.NewPluginError(p.Name(), "connect", "redis "+name+" unreachable at "+ins.Addr(), err)
	}
	redisPingLatency.Observe(time.Since(start).Seconds())
	p.Log().Infof("redis %s is ready, addr=%s db=%d", name, ins.Addr(), ins.DB)
	return c, nil
}

// Client returns the named instance; an empty name selects the default.
// Returns nil when absent.
func (p *Plugin) Client(name string) *redis.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if name == "" {
		name = p.cfg.Default
	}
	return p.normal.byName[name]
}

// ByAddr returns the command connection to host:port/db, or nil.
func (p *Plugin) ByAddr(host string, port, db int) *redis.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.normal.byKey[Instance{Host: host, Port: port, DB: db}.Key()]
}

// Default returns the default instance name.
func (p *Plugin) Default() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Default
}

// Names lists the command instance names in lexical order.
func (p *Plugin) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.normal.byName))
	for name := range p.normal.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stop closes every connection once.
func (p *Plugin) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, pl := range []*pool{p.normal, p.sub} {
		for key, c := range pl.byKey {
			if err := c.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				errs = append(errs, fmt.Errorf("close %s redis %s: %w", pl.kind, key, err))
			}
		}
		pl.byKey = make(map[string]*redis.Client)
		pl.byName = make(map[string]*redis.Client)
	}
	return errors.Join(errs...)
}
