// Package finder provides service discovery and config distribution over a
// shared redis, with a nacos-like surface.
//
// Store layout:
//
//	nfinder:{namespace}:{group}                hash  {service}@{ip}@{port} -> Instance JSON
//	nfinder:groupList                          set   of group keys
//	nfinder:{namespace}:{group}:{service}      channel of ServiceEvent JSON
//	nfinder:{namespace}:{group}:cfg            hash  {dataId} -> config JSON
//	nfinder:{namespace}:{group}:cfg:{dataId}   channel of change notifications
//
// Membership is eventually consistent: every instance refreshes its record
// each HeartbeatInterval and readers drop records older than LivenessWindow.
package finder

import (
	"context"
	"encoding/json"
	"time"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/pubsub"
)

// Option configures a Finder.
type Option func(*options)

type options struct {
	client    redis.UniversalClient
	now       func() time.Time
	heartbeat time.Duration
}

// WithRedisClient reuses client for commands and subscriptions instead of
// dialing base.redis. The client is not closed by Stop.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.client = client }
}

// WithClock replaces time.Now for record timestamps and liveness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHeartbeatInterval overrides HeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// Finder is the facade the host uses. When disabled every operation is a
// no-op returning empty results.
type Finder struct {
	Events

	logger  klog.Logger
	log     *klog.Helper
	opts    options
	backend *RedisFinder
}

// New creates a Finder; call Init to connect it.
func New(logger klog.Logger, opts ...Option) *Finder {
	o := options{now: time.Now, heartbeat: HeartbeatInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Finder{
		logger: logger,
		log:    log.NewHelper(logger, "module", "finder"),
		opts:   o,
	}
}

// Init builds the redis backend when cfg.Enable is set, registering the
// self record described by id.
func (f *Finder) Init(ctx context.Context, cfg Config, id Identity) error {
	if !cfg.Enable {
		f.log.Info("finder disabled")
		return nil
	}
	b := newRedisFinder(cfg, id, &f.Events, f.logger, f.opts)
	if err := b.Init(ctx); err != nil {
		_ = b.Stop(context.Background())
		return err
	}
	f.backend = b
	return nil
}

// Enabled reports whether a backend was constructed.
func (f *Finder) Enabled() bool { return f.backend != nil }

func (f *Finder) Start(context.Context) error { return nil }

// AfterStartAll replays cached service lists to observers.
func (f *Finder) AfterStartAll(ctx context.Context) {
	if f.backend != nil {
		f.backend.AfterStartAll(ctx)
	}
}

func (f *Finder) Stop(ctx context.Context) error {
	if f.backend == nil {
		return nil
	}
	return f.backend.Stop(ctx)
}

// GetService returns the live hosts of service.
func (f *Finder) GetService(ctx context.Context, service string) []Host {
	if f.backend == nil {
		return nil
	}
	return f.backend.GetService(ctx, service)
}

// GetConfig returns the stored config blob of dataID or nil.
func (f *Finder) GetConfig(ctx context.Context, dataID string) json.RawMessage {
	if f.backend == nil {
		return nil
	}
	return f.backend.GetConfig(ctx, dataID)
}

// Dependency returns a config blob preloaded from config.dependencies.
func (f *Finder) Dependency(dataID string) (json.RawMessage, bool) {
	if f.backend == nil {
		return nil, false
	}
	return f.backend.Dependency(dataID)
}

// Publish sends msg on channel; non-string values are JSON encoded.
func (f *Finder) Publish(ctx context.Context, channel string, msg any) error {
	if f.backend == nil {
		return nil
	}
	return f.backend.Publish(ctx, channel, msg)
}

func (f *Finder) Subscribe(ctx context.Context, fn pubsub.Handler, channels ...string) (pubsub.ListenerID, error) {
	if f.backend == nil {
		return 0, nil
	}
	return f.backend.mux.Subscribe(ctx, fn, channels...)
}

func (f *Finder) Unsubscribe(ctx context.Context, id pubsub.ListenerID, channels ...string) error {
	if f.backend == nil {
		return nil
	}
	return f.backend.mux.Unsubscribe(ctx, id, channels...)
}

func (f *Finder) PSubscribe(ctx context.Context, fn pubsub.Handler, patterns ...string) (pubsub.ListenerID, error) {
	if f.backend == nil {
		return 0, nil
	}
	return f.backend.mux.PSubscribe(ctx, fn, patterns...)
}

func (f *Finder) PUnsubscribe(ctx context.Context, id pubsub.ListenerID, patterns ...string) error {
	if f.backend == nil {
		return nil
	}
	return f.backend.mux.PUnsubscribe(ctx, id, patterns...)
}

// OnMessage observes every message received on the subscribe connection.
func (f *Finder) OnMessage(fn pubsub.Handler) context.CancelFunc {
	if f.backend == nil {
		return func() {}
	}
	return f.backend.mux.Observe(fn)
}

// Client returns the command connection, nil when disabled.
func (f *Finder) Client() redis.UniversalClient {
	if f.backend == nil {
		return nil
	}
	return f.backend.Client()
}

// Backend exposes the redis implementation, nil when disabled.
func (f *Finder) Backend() *RedisFinder { return f.backend }

// ConfigAs decodes the config blob of dataID into T. ok is false when the
// blob is absent or does not decode.
func ConfigAs[T any](ctx context.Context, f *Finder, dataID string) (v T, ok bool) {
	raw := f.GetConfig(ctx, dataID)
	if raw == nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		f.log.Errorf("Failed to decode config %s: %v", dataID, err)
		return v, false
	}
	return v, true
}
