// Package mq is the built-in message queue plugin. It publishes and
// subscribes over redis pub/sub, sharing connections with the redis plugin
// when that plugin is loaded.
//
// Subscriptions are reference counted by pubsub.Multiplexer: subscribing the
// same channel twice issues one SUBSCRIBE, and the channel is only released
// after the matching number of unsubscribes.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/go-lynx/hive/plugins"
	rdplug "github.com/go-lynx/hive/plugins/redis"
	"github.com/go-lynx/hive/pubsub"
)

// PluginName is the package the plugin registers under.
const PluginName = "mq"

// ErrPublishDisabled is returned by Publish when enablePub is off.
var ErrPublishDisabled = errors.New("mq publish disabled, set enablePub to true")

var (
	mqPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "mq",
		Name:      "published_total",
		Help:      "Total number of messages published.",
	})
	mqPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "mq",
		Name:      "publish_errors_total",
		Help:      "Total number of failed publishes.",
	})
	mqReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "mq",
		Name:      "received_total",
		Help:      "Total number of messages received by subscription kind.",
	}, []string{"kind"})
)

func init() {
	plugins.Register(PluginName, func(info plugins.Info) (plugins.Plugin, error) {
		return New(info), nil
	})
}

// Config is the mq plugin configuration.
type Config struct {
	// Driver selects the backend; only "redis" is supported.
	Driver string          `json:"driver,omitempty"`
	Redis  rdplug.Instance `json:"redis"`
	// EnableSub defaults to true, EnablePub to false.
	EnableSub *bool `json:"enableSub,omitempty"`
	EnablePub *bool `json:"enablePub,omitempty"`
}

func (c Config) subEnabled() bool { return c.EnableSub == nil || *c.EnableSub }
func (c Config) pubEnabled() bool { return c.EnablePub != nil && *c.EnablePub }

// Plugin is the mq client.
type Plugin struct {
	*plugins.BasePlugin

	cfg    Config
	shared bool

	sub       *redis.Client
	pub       *redis.Client
	transport *pubsub.RedisTransport
	mux       *pubsub.Multiplexer
	stopPump  context.CancelFunc
}

// New creates an unconfigured plugin.
func New(info plugins.Info) *Plugin {
	return &Plugin{BasePlugin: plugins.NewBasePlugin(info)}
}

// FromRuntime returns the loaded mq plugin, or nil.
func FromRuntime(rt plugins.Runtime) *Plugin {
	p, _ := plugins.Resolve[*Plugin](rt, PluginName)
	return p
}

// Init opens the subscriber and publisher connections that are enabled.
// An unsupported driver is logged and leaves the plugin inert.
func (p *Plugin) Init(ctx context.Context, rt plugins.Runtime) error {
	if err := p.GetConfig(ctx, &p.cfg); err != nil {
		return fmt.Errorf("load mq config: %w", err)
	}
	if p.cfg.Driver == "" {
		p.cfg.Driver = "redis"
	}
	if p.cfg.Driver != "redis" {
		p.Log().Warnf("[%s] Unsupport driver %s", p.Name(), p.cfg.Driver)
		return nil
	}

	if rd := rdplug.FromRuntime(rt); rd != nil {
		if err := p.connectShared(ctx, rd); err != nil {
			return err
		}
	} else {
		p.connectOwn(ctx)
	}

	if p.sub != nil {
		p.transport = pubsub.NewRedisTransport(context.Background(), p.sub)
		p.mux = pubsub.NewMultiplexer(p.transport, rt.Logger())
		p.mux.Observe(func(m pubsub.Message) { mqReceived.WithLabelValues(m.Kind.String()).Inc() })
		pumpCtx, cancel := context.WithCancel(context.Background())
		p.stopPump = cancel
		go p.transport.Pump(pumpCtx, p.mux)
	}
	return nil
}

func (p *Plugin) connectShared(ctx context.Context, rd *rdplug.Plugin) error {
	var err error
	if p.cfg.subEnabled() {
		if p.sub, err = rd.Instance(ctx, p.Name()+"-mqsub", p.cfg.Redis, true); err != nil {
			return err
		}
	}
	if p.cfg.pubEnabled() {
		if p.pub, err = rd.Instance(ctx, p.Name()+"-mqpub", p.cfg.Redis, false); err != nil {
			return err
		}
	}
	p.shared = true
	return nil
}

func (p *Plugin) connectOwn(ctx context.Context) {
	open := func(name string) *redis.Client {
		c := redis.NewClient(p.cfg.Redis.Options())
		if err := c.Ping(ctx).Err(); err != nil {
			p.Log().Warnf("redis %s error! %v", name, err)
		} else {
			p.Log().Infof("redis %s is ready", name)
		}
		return c
	}
	if p.cfg.subEnabled() {
		p.sub = open(p.Name() + "-mqsub")
	}
	if p.cfg.pubEnabled() {
		p.pub = open(p.Name() + "-mqpub")
	}
}

// Subscribe subscribes channels. fn, when given, receives the messages of
// that single channel; it is rejected with a warning for several channels.
// Keep the returned id to detach fn in Unsubscribe.
func (p *Plugin) Subscribe(ctx context.Context, fn pubsub.Handler, channels ...string) (pubsub.ListenerID, error) {
	if p.mux == nil {
		return 0, nil
	}
	return p.mux.Subscribe(ctx, fn, channels...)
}

// PSubscribe is Subscribe for glob patterns.
func (p *Plugin) PSubscribe(ctx context.Context, fn pubsub.Handler, patterns ...string) (pubsub.ListenerID, error) {
	if p.mux == nil {
		return 0, nil
	}
	return p.mux.PSubscribe(ctx, fn, patterns...)
}

// Unsubscribe releases one reference per channel and detaches the callback id.
func (p *Plugin) Unsubscribe(ctx context.Context, id pubsub.ListenerID, channels ...string) error {
	if p.mux == nil {
		return nil
	}
	return p.mux.Unsubscribe(ctx, id, channels...)
}

func (p *Plugin) PUnsubscribe(ctx context.Context, id pubsub.ListenerID, patterns ...string) error {
	if p.mux == nil {
		return nil
	}
	return p.mux.PUnsubscribe(ctx, id, patterns...)
}

// OnMessage observes every channel message.
func (p *Plugin) OnMessage(fn func(channel, payload string)) context.CancelFunc {
	return p.observe(func(m pubsub.Message) {
		if m.Kind == pubsub.Channel {
			fn(m.Channel, m.Payload)
		}
	})
}

// OnPMessage observes every pattern message.
func (p *Plugin) OnPMessage(fn func(pattern, channel, payload string)) context.CancelFunc {
	return p.observe(func(m pubsub.Message) {
		if m.Kind == pubsub.Pattern {
			fn(m.Pattern, m.Channel, m.Payload)
		}
	})
}

func (p *Plugin) observe(fn pubsub.Handler) context.CancelFunc {
	if p.mux == nil {
		return func() {}
	}
	return p.mux.Observe(fn)
}

// Publish sends message on channel. Strings and byte slices are sent as is,
// anything else as JSON.
func (p *Plugin) Publish(ctx context.Context, channel string, message any) error {
	if p.pub == nil {
		p.Log().Warn("now enablePub is false, Please set enablePub true")
		return ErrPublishDisabled
	}
	var payload any
	switch m := message.(type) {
	case string, []byte:
		payload = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode mq message: %w", err)
		}
		payload = b
	}
	if err := p.pub.Publish(ctx, channel, payload).Err(); err != nil {
		mqPublishErrors.Inc()
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	mqPublished.Inc()
	return nil
}

// Count returns the subscription and callback counts of a channel or pattern.
func (p *Plugin) Count(kind pubsub.Kind, key string) (subs, callbacks int) {
	if p.mux == nil {
		return 0, 0
	}
	return p.mux.Count(kind, key)
}

// Stop drops every subscription. Connections are closed here only when the
// plugin opened them itself; shared ones belong to the redis plugin.
func (p *Plugin) Stop(ctx context.Context) error {
	var errs []error
	if p.mux != nil {
		errs = append(errs, p.mux.Reset(ctx))
	}
	if p.stopPump != nil {
		p.stopPump()
	}
	if p.transport != nil {
		errs = append(errs, p.transport.Close())
	}
	if !p.shared {
		for _, c := range []*redis.Client{p.sub, p.pub} {
			if c != nil {
				errs = append(errs, c.Close())
			}
		}
	}
	return errors.Join(errs...)
}
