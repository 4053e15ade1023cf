package finder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/pkg/netx"
	"github.com/go-lynx/hive/pubsub"
)

// ErrNotInitialized is returned when the store never became reachable.
var ErrNotInitialized = errors.New("finder not initialized")

var tracer = otel.Tracer("github.com/go-lynx/hive/finder")

// Identity describes the hosting process for its self record.
type Identity struct {
	// ServerID is the application name.
	ServerID string
	NodeName string
	IP       string
	Port     int
	// CfgKey is advertised as metadata.rdCfgKey.
	CfgKey string
	// Meta is merged under the well-known metadata keys.
	Meta map[string]any
}

// UUID returns "ip@port@serverId".
func (id Identity) UUID() string {
	return fmt.Sprintf("%s@%d@%s", id.IP, id.Port, id.ServerID)
}

// RedisFinder implements naming and config distribution over redis. It holds
// two connections: one for commands and publishing, one for subscriptions.
type RedisFinder struct {
	cfg    Config
	id     Identity
	opts   options
	log    *klog.Helper
	logger klog.Logger
	events *Events

	rd         redis.UniversalClient
	ownsClient bool
	transport  *pubsub.RedisTransport
	mux        *pubsub.Multiplexer
	stopPump   context.CancelFunc
	ready      atomic.Bool

	groupKey       string
	insName        string
	serviceChannel string

	selfMu sync.Mutex
	self   Instance

	depsMu sync.RWMutex
	deps   map[string]json.RawMessage

	naming *Naming
	config *ConfigClient
}

func newRedisFinder(cfg Config, id Identity, events *Events, logger klog.Logger, opts options) *RedisFinder {
	cfg = cfg.withDefaults(id.ServerID)
	if id.IP == "" {
		id.IP = netx.LocalIP()
	}
	if id.Port == 0 {
		id.Port = DefaultPort
	}

	f := &RedisFinder{
		cfg:    cfg,
		id:     id,
		opts:   opts,
		logger: logger,
		log:    log.NewHelper(logger, "module", "finder"),
		events: events,
		deps:   make(map[string]json.RawMessage),
	}
	f.groupKey = GroupKey(cfg.Base.Namespace, cfg.Base.Group)
	f.self = f.initMetaInfo()
	f.insName = f.self.Field(cfg.Naming.ServiceName)
	f.serviceChannel = ServiceChannel(f.groupKey, cfg.Naming.ServiceName)

	if cfg.Naming.Enable {
		f.naming = newNaming(f)
	}
	if cfg.Config.Enable {
		f.config = newConfigClient(f)
	}
	return f
}

func (f *RedisFinder) initMetaInfo() Instance {
	weight := 1.0
	if f.cfg.Naming.Weight > 0 {
		weight = f.cfg.Naming.Weight
	}
	now := f.opts.now().UnixMilli()
	return Instance{
		InstanceID:  f.id.UUID(),
		ServiceName: f.cfg.Naming.ServiceName,
		IP:          f.id.IP,
		Port:        f.id.Port,
		Healthy:     true,
		Enabled:     true,
		Weight:      weight,
		Metadata: Metadata{
			AppName:  f.id.ServerID,
			NodeName: f.id.NodeName,
			RdCfgKey: f.id.CfgKey,
			CreateTm: now,
			UpdateTm: now,
			Extra:    maps.Clone(f.id.Meta),
		},
	}
}

// Init connects both redis connections, then registers the self record and
// wires config subscriptions. It retries the connection until ctx is done.
func (f *RedisFinder) Init(ctx context.Context) error {
	if f.opts.client != nil {
		f.rd = f.opts.client
	} else {
		r := f.cfg.Base.Redis
		f.rd = redis.NewClient(&redis.Options{
			Addr:            r.Addr,
			Username:        r.Username,
			Password:        r.Password,
			DB:              r.DB,
			MinRetryBackoff: 100 * time.Millisecond,
			MaxRetryBackoff: 2 * time.Second,
		})
		f.ownsClient = true
	}
	f.transport = pubsub.NewRedisTransport(context.Background(), f.rd)
	f.mux = pubsub.NewMultiplexer(f.transport, f.logger)

	if err := f.waitReady(ctx); err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	f.stopPump = cancel
	go f.transport.Pump(pumpCtx, f.mux)
	f.ready.Store(true)
	f.log.Debugf("rdFinder ready, group %s", f.groupKey)

	if f.naming != nil {
		if err := f.naming.Register(ctx); err != nil {
			return err
		}
	}
	if f.config != nil {
		f.config.Init(ctx)
	}
	return nil
}

func (f *RedisFinder) waitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		if err := f.rd.Ping(ctx).Err(); err != nil {
			return err
		}
		return f.transport.Ping(ctx)
	}
	notify := func(err error, next time.Duration) {
		if netx.IsTimeout(err) {
			f.log.Warnf("rdFinder is reconnecting in %s: timeout", next)
			return
		}
		f.log.Warnf("rdFinder is reconnecting in %s: %v", next, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	return nil
}

// Stop deregisters, drops every subscription and closes both connections.
func (f *RedisFinder) Stop(ctx context.Context) error {
	if f.naming != nil {
		f.naming.Deregister(ctx)
	}
	if f.mux != nil {
		if err := f.mux.Reset(ctx); err != nil {
			f.log.Warnf("rdFinder unsubscribe: %v", err)
		}
	}
	f.ready.Store(false)
	if f.stopPump != nil {
		f.stopPump()
	}

	var errs []error
	if f.transport != nil {
		errs = append(errs, f.transport.Close())
	}
	if f.rd != nil && f.ownsClient {
		errs = append(errs, f.rd.Close())
	}
	return errors.Join(errs...)
}

// AfterStartAll replays the cached service lists to observers.
func (f *RedisFinder) AfterStartAll(context.Context) {
	if f.naming != nil {
		f.naming.AfterStartAll()
	}
}

// GetService returns the live hosts of service.
func (f *RedisFinder) GetService(ctx context.Context, service string) []Host {
	if f.naming == nil {
		f.log.Warn("rdFinder naming service not start!")
		return nil
	}
	instances := f.naming.Instances(ctx, service)
	hosts := make([]Host, 0, len(instances))
	for _, ins := range instances {
		hosts = append(hosts, hostOf(ins))
	}
	return hosts
}

// GetConfig returns the stored blob of dataID, nil when absent or invalid.
func (f *RedisFinder) GetConfig(ctx context.Context, dataID string) json.RawMessage {
	if f.config == nil {
		f.log.Warn("rdFinder config not start!")
		return nil
	}
	return f.config.Get(ctx, dataID)
}

// Dependency returns a config blob preloaded during Init.
func (f *RedisFinder) Dependency(dataID string) (json.RawMessage, bool) {
	f.depsMu.RLock()
	defer f.depsMu.RUnlock()
	v, ok := f.deps[dataID]
	return v, ok
}

func (f *RedisFinder) setDependency(dataID string, v json.RawMessage) {
	f.depsMu.Lock()
	f.deps[dataID] = v
	f.depsMu.Unlock()
}

// Publish sends msg on channel. Strings and byte slices are sent as is,
// anything else JSON encoded. Before the connection is ready it only warns.
func (f *RedisFinder) Publish(ctx context.Context, channel string, msg any) error {
	if !f.ready.Load() {
		f.log.Warn("Redis publisher not initialized")
		return nil
	}
	var payload any
	switch v := msg.(type) {
	case string, []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", channel, err)
		}
		payload = b
	}
	return f.rd.Publish(ctx, channel, payload).Err()
}

// Self returns a copy of the self record.
func (f *RedisFinder) Self() Instance {
	f.selfMu.Lock()
	defer f.selfMu.Unlock()
	return f.self.Clone()
}

func (f *RedisFinder) updateSelf(fn func(*Instance)) Instance {
	f.selfMu.Lock()
	defer f.selfMu.Unlock()
	fn(&f.self)
	return f.self.Clone()
}

// Client returns the command connection.
func (f *RedisFinder) Client() redis.UniversalClient { return f.rd }

// Multiplexer returns the subscription multiplexer.
func (f *RedisFinder) Multiplexer() *pubsub.Multiplexer { return f.mux }

// GroupKey returns the instance hash key.
func (f *RedisFinder) GroupKey() string { return f.groupKey }

// InstanceName returns the self hash field.
func (f *RedisFinder) InstanceName() string { return f.insName }
