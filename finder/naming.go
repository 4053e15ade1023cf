package finder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-lynx/hive/pubsub"
)

// Naming keeps the self record alive in the group hash and caches the
// instances of subscribed services, updated by push notifications.
type Naming struct {
	f   *RedisFinder
	log *klog.Helper

	mu         sync.Mutex
	cache      map[string][]Instance
	subscribed map[string]pubsub.ListenerID
	order      []string
	registered bool

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

func newNaming(f *RedisFinder) *Naming {
	return &Naming{
		f:          f,
		log:        f.log,
		cache:      make(map[string][]Instance),
		subscribed: make(map[string]pubsub.ListenerID),
	}
}

// Register writes the self record, starts the heartbeat, announces "up" and
// subscribes to every configured service plus its own.
func (n *Naming) Register(ctx context.Context) error {
	f := n.f
	payload, err := json.Marshal(f.Self())
	if err != nil {
		return fmt.Errorf("encode self record: %w", err)
	}
	_, err = f.rd.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, f.groupKey, f.insName, payload)
		p.SAdd(ctx, GroupListKey, f.groupKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register instance %s: %w", f.insName, err)
	}

	n.mu.Lock()
	n.registered = true
	n.mu.Unlock()
	n.startHeartbeat()
	n.publish(ctx, ActionUp)
	n.log.Infof("Registered instance %s", f.insName)

	for _, service := range n.services() {
		n.subscribe(ctx, service)
	}
	return nil
}

func (n *Naming) services() []string {
	cfg := n.f.cfg.Naming
	out := make([]string, 0, len(cfg.Subscribe)+1)
	seen := make(map[string]bool, len(cfg.Subscribe)+1)
	for _, s := range cfg.Subscribe {
		if s.ServiceName != "" && !seen[s.ServiceName] {
			seen[s.ServiceName] = true
			out = append(out, s.ServiceName)
		}
	}
	if !seen[cfg.ServiceName] {
		out = append(out, cfg.ServiceName)
	}
	return out
}

func (n *Naming) subscribe(ctx context.Context, service string) {
	hosts, err := n.fetch(ctx, service)
	if err != nil {
		n.log.Warnf("fetch %s instances: %v", service, err)
	}

	n.mu.Lock()
	_, dup := n.subscribed[service]
	n.cache[service] = hosts
	if !dup {
		n.subscribed[service] = 0
		n.order = append(n.order, service)
	}
	n.mu.Unlock()
	if dup {
		return
	}
	cachedInstances.WithLabelValues(service).Set(float64(len(hosts)))

	id, err := n.f.mux.Subscribe(ctx, func(msg pubsub.Message) {
		n.handleMessage(service, msg.Payload)
	}, ServiceChannel(n.f.groupKey, service))
	if err != nil {
		n.log.Warnf("subscribe %s: %v", service, err)
	}
	n.mu.Lock()
	n.subscribed[service] = id
	n.mu.Unlock()

	if len(hosts) > 0 {
		n.notify(service, hosts)
	}
}

// Heartbeat refreshes updateTm on the self record and re-announces "up".
// It does nothing while unregistered.
func (n *Naming) Heartbeat(ctx context.Context) error {
	n.mu.Lock()
	registered := n.registered
	n.mu.Unlock()
	if !registered {
		return nil
	}

	now := n.f.opts.now().UnixMilli()
	self := n.f.updateSelf(func(i *Instance) { i.Metadata.UpdateTm = now })
	payload, err := json.Marshal(self)
	if err != nil {
		heartbeatsTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := n.f.rd.HSet(ctx, n.f.groupKey, n.f.insName, payload).Err(); err != nil {
		heartbeatsTotal.WithLabelValues("error").Inc()
		return err
	}
	heartbeatsTotal.WithLabelValues("ok").Inc()
	n.publish(ctx, ActionUp)
	return nil
}

func (n *Naming) startHeartbeat() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hbCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.hbCancel, n.hbDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(n.f.opts.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := n.Heartbeat(ctx); err != nil {
					n.log.Errorf("Error sending heartbeat: %v", err)
				}
			}
		}
	}()
}

func (n *Naming) stopHeartbeat() {
	n.mu.Lock()
	cancel, done := n.hbCancel, n.hbDone
	n.hbCancel, n.hbDone = nil, nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Deregister removes the self record, stops the heartbeat and announces
// "down". An unreachable store is treated as already deregistered.
func (n *Naming) Deregister(ctx context.Context) {
	if !n.f.ready.Load() {
		return
	}
	if err := n.f.rd.HDel(ctx, n.f.groupKey, n.f.insName).Err(); err != nil {
		n.log.Warnf("deregister %s: %v", n.f.insName, err)
	}

	n.mu.Lock()
	wasRegistered := n.registered
	n.registered = false
	n.mu.Unlock()
	if wasRegistered {
		n.stopHeartbeat()
	}
	n.publish(ctx, ActionDown)
	n.log.Infof("Deregistered instance %s", n.f.insName)
}

func (n *Naming) publish(ctx context.Context, act Action) {
	ev := ServiceEvent{Act: act, InstanceID: n.f.insName, Info: n.f.Self()}
	if err := n.f.Publish(ctx, n.f.serviceChannel, ev); err != nil {
		n.log.Warnf("publish %s %s: %v", act, n.f.insName, err)
	}
}

// fetch reads every record of service straight from the store. Records that
// fail to decode are skipped.
func (n *Naming) fetch(ctx context.Context, service string) (_ []Instance, err error) {
	ctx, span := tracer.Start(ctx, "finder.fetchInstances",
		trace.WithAttributes(attribute.String("finder.service", service)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	out, err := readInstances(ctx, n.f.rd, n.f.groupKey, service, func(field string, err error) {
		n.log.Warnf("decode instance %s: %v", field, err)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("finder.instances", len(out)))
	return out, nil
}

// Instances returns the live instances of service. Unsubscribed services are
// read from the store; subscribed ones from the cache, which is rewritten and
// observers notified when expiry shrank it.
func (n *Naming) Instances(ctx context.Context, service string) []Instance {
	now := n.f.opts.now()

	n.mu.Lock()
	if _, ok := n.subscribed[service]; ok {
		hosts := n.cache[service]
		live := liveInstances(hosts, now)
		shrunk := len(live) != len(hosts)
		if shrunk {
			n.cache[service] = live
		}
		live = cloneInstances(live)
		n.mu.Unlock()

		if shrunk {
			cachedInstances.WithLabelValues(service).Set(float64(len(live)))
			n.f.events.emitServicesChange(service, live)
		}
		return live
	}
	n.mu.Unlock()

	hosts, err := n.fetch(ctx, service)
	if err != nil {
		n.log.Warnf("fetch %s instances: %v", service, err)
		return []Instance{}
	}
	return liveInstances(hosts, now)
}

// AfterStartAll notifies observers of every cached service.
func (n *Naming) AfterStartAll() {
	n.mu.Lock()
	services := append([]string(nil), n.order...)
	n.mu.Unlock()
	for _, s := range services {
		n.mu.Lock()
		hosts := cloneInstances(n.cache[s])
		n.mu.Unlock()
		n.notify(s, hosts)
	}
}

func (n *Naming) handleMessage(service, payload string) {
	var ev struct {
		Act        Action          `json:"act"`
		InstanceID string          `json:"instanceId"`
		Info       json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		n.log.Warnf("subscribe error %s: %v", service, err)
		return
	}
	serviceEventsTotal.WithLabelValues(service, string(ev.Act)).Inc()

	switch ev.Act {
	case ActionUp:
		if ev.InstanceID == n.f.insName {
			return
		}
		var info Instance
		if err := json.Unmarshal(ev.Info, &info); err != nil {
			n.log.Warnf("subscribe error %s: %v", service, err)
			return
		}
		n.applyUp(service, info)
	case ActionDown:
		if ev.InstanceID == n.f.insName {
			return
		}
		var info Instance
		if err := json.Unmarshal(ev.Info, &info); err != nil {
			n.log.Warnf("subscribe error %s: %v", service, err)
			return
		}
		n.applyDown(service, info)
	case ActionStat:
		var st statInfo
		if err := json.Unmarshal(ev.Info, &st); err != nil {
			n.log.Warnf("subscribe error %s: %v", service, err)
			return
		}
		if ev.InstanceID == n.f.insName {
			n.f.updateSelf(st.apply)
		}
		n.applyStat(service, st)
	}
}

func (n *Naming) applyUp(service string, info Instance) {
	host := cachedHost(service, info)

	n.mu.Lock()
	hosts, ok := n.cache[service]
	if !ok {
		n.mu.Unlock()
		return
	}
	if i := indexByAddr(hosts, host); i >= 0 {
		hosts = append(hosts[:i:i], hosts[i+1:]...)
	}
	hosts = append(hosts, host)
	n.cache[service] = hosts
	snapshot := cloneInstances(hosts)
	n.mu.Unlock()

	cachedInstances.WithLabelValues(service).Set(float64(len(snapshot)))
	n.notify(service, snapshot)
}

func (n *Naming) applyDown(service string, info Instance) {
	n.mu.Lock()
	hosts, ok := n.cache[service]
	i := indexByAddr(hosts, info)
	if !ok || i < 0 {
		n.mu.Unlock()
		return
	}
	hosts = append(hosts[:i:i], hosts[i+1:]...)
	n.cache[service] = hosts
	snapshot := cloneInstances(hosts)
	n.mu.Unlock()

	cachedInstances.WithLabelValues(service).Set(float64(len(snapshot)))
	n.notify(service, snapshot)
}

// applyStat updates weight, enabled and healthy in place. Observers are
// notified only when a cached entry actually changed.
func (n *Naming) applyStat(service string, st statInfo) {
	n.mu.Lock()
	hosts := n.cache[service]
	i := indexByAddr(hosts, Instance{IP: st.IP, Port: st.Port})
	if i < 0 {
		n.mu.Unlock()
		return
	}
	before := hosts[i]
	st.apply(&hosts[i])
	changed := before.Weight != hosts[i].Weight ||
		before.Enabled != hosts[i].Enabled ||
		before.Healthy != hosts[i].Healthy
	snapshot := cloneInstances(hosts)
	n.mu.Unlock()

	if changed {
		n.notify(service, snapshot)
	}
}

// notify hands observers the live subset of hosts.
func (n *Naming) notify(service string, hosts []Instance) {
	n.f.events.emitServicesChange(service, liveInstances(hosts, n.f.opts.now()))
}

// cachedHost keeps only the well-known metadata of a pushed record.
func cachedHost(service string, info Instance) Instance {
	info.ServiceName = service
	info.Metadata.Extra = nil
	return info
}

func indexByAddr(hosts []Instance, target Instance) int {
	for i, h := range hosts {
		if h.SameAddr(target) {
			return i
		}
	}
	return -1
}

func liveInstances(hosts []Instance, now time.Time) []Instance {
	out := make([]Instance, 0, len(hosts))
	for _, h := range hosts {
		if h.Alive(now) {
			out = append(out, h)
		}
	}
	return out
}

func cloneInstances(in []Instance) []Instance {
	if in == nil {
		return nil
	}
	out := make([]Instance, len(in))
	for i, h := range in {
		out[i] = h.Clone()
	}
	return out
}
