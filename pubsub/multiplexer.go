// Package pubsub multiplexes reference-counted channel and pattern
// subscriptions over one shared subscribe connection.
//
// Each raw subscription is issued to the Transport only when its count goes
// from zero to one and revoked when it returns to zero. Incoming messages are
// first delivered to generic observers, then to the callbacks registered for
// the exact channel or pattern under its derived event name ("mq:" + key).
package pubsub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/go-lynx/hive/log"
)

// Kind selects the subscription table.
type Kind int

const (
	// Channel is an exact-match subscription.
	Channel Kind = iota
	// Pattern is a glob-pattern subscription.
	Pattern
)

func (k Kind) String() string {
	if k == Pattern {
		return "psub"
	}
	return "sub"
}

// Message is a raw message received from the transport. Pattern is only set
// for pattern-matched messages.
type Message struct {
	Kind    Kind
	Pattern string
	Channel string
	Payload string
}

// Key returns the subscription key the message was delivered for.
func (m Message) Key() string {
	if m.Kind == Pattern {
		return m.Pattern
	}
	return m.Channel
}

// Handler receives dispatched messages.
type Handler func(Message)

// ListenerID identifies a registered callback. Zero means none.
type ListenerID uint64

// Transport is the subscribe side of a shared connection.
type Transport interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	PSubscribe(ctx context.Context, patterns ...string) error
	PUnsubscribe(ctx context.Context, patterns ...string) error
}

// DerivedName returns the per-key event name callbacks are attached under.
func DerivedName(key string) string {
	return "mq:" + key
}

var activeSubscriptions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "pubsub",
		Name:      "active_subscriptions",
		Help:      "Number of raw subscriptions held on the transport",
	},
	[]string{"kind"},
)

type callback struct {
	id ListenerID
	fn Handler
}

// table tracks one subscription kind.
type table struct {
	kind Kind
	// subs holds the raw subscription count per key.
	subs map[string]int
	// callbacks holds the attached callbacks per derived event name.
	callbacks map[string][]callback
}

func newTable(kind Kind) *table {
	return &table{
		kind:      kind,
		subs:      make(map[string]int),
		callbacks: make(map[string][]callback),
	}
}

// Multiplexer is safe for concurrent use. Handlers run on the goroutine that
// calls Dispatch and must not block it for long.
type Multiplexer struct {
	transport Transport
	log       *klog.Helper

	mu        sync.Mutex
	seq       ListenerID
	tables    [2]*table
	observers []callback
}

// NewMultiplexer creates a Multiplexer over t.
func NewMultiplexer(t Transport, logger klog.Logger) *Multiplexer {
	return &Multiplexer{
		transport: t,
		log:       log.NewHelper(logger, "module", "pubsub"),
		tables:    [2]*table{newTable(Channel), newTable(Pattern)},
	}
}

// Subscribe adds one reference to each channel. A callback may only be given
// with a single channel; otherwise the call logs a warning and does nothing.
// The returned id is zero when fn is nil.
func (m *Multiplexer) Subscribe(ctx context.Context, fn Handler, channels ...string) (ListenerID, error) {
	return m.add(ctx, Channel, fn, channels)
}

// PSubscribe is Subscribe for patterns.
func (m *Multiplexer) PSubscribe(ctx context.Context, fn Handler, patterns ...string) (ListenerID, error) {
	return m.add(ctx, Pattern, fn, patterns)
}

// Unsubscribe removes one reference from each channel and detaches the
// callback id when non-zero. Unknown channels are logged and ignored.
func (m *Multiplexer) Unsubscribe(ctx context.Context, id ListenerID, channels ...string) error {
	return m.remove(ctx, Channel, id, channels)
}

// PUnsubscribe is Unsubscribe for patterns.
func (m *Multiplexer) PUnsubscribe(ctx context.Context, id ListenerID, patterns ...string) error {
	return m.remove(ctx, Pattern, id, patterns)
}

// Observe registers fn for every message regardless of key.
func (m *Multiplexer) Observe(fn Handler) context.CancelFunc {
	m.mu.Lock()
	m.seq++
	id := m.seq
	m.observers = append(m.observers, callback{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observers = removeCallback(m.observers, id)
	}
}

func (m *Multiplexer) add(ctx context.Context, kind Kind, fn Handler, keys []string) (ListenerID, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if len(keys) > 1 && fn != nil {
		m.log.Warnf("callback unsupported for %s array %v", kind, keys)
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[kind]
	var fresh []string
	for _, key := range keys {
		t.subs[key]++
		if t.subs[key] == 1 {
			fresh = append(fresh, key)
		}
	}

	var id ListenerID
	if fn != nil {
		m.seq++
		id = m.seq
		name := DerivedName(keys[0])
		t.callbacks[name] = append(t.callbacks[name], callback{id: id, fn: fn})
	}

	if len(fresh) == 0 {
		return id, nil
	}
	activeSubscriptions.WithLabelValues(kind.String()).Add(float64(len(fresh)))
	// The count is kept on failure; the transport restores its
	// subscriptions when it reconnects.
	var err error
	if kind == Pattern {
		err = m.transport.PSubscribe(ctx, fresh...)
	} else {
		err = m.transport.Subscribe(ctx, fresh...)
	}
	if err != nil {
		m.log.Warnf("%s %v failed: %v", kind, fresh, err)
		return id, fmt.Errorf("pubsub %s %v: %w", kind, fresh, err)
	}
	return id, nil
}

func (m *Multiplexer) remove(ctx context.Context, kind Kind, id ListenerID, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > 1 && id != 0 {
		m.log.Warnf("callback unsupported for %s array %v", kind, keys)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[kind]
	var gone []string
	for _, key := range keys {
		n, ok := t.subs[key]
		if !ok {
			m.log.Warnf("-- evt %s cnt error, not find", key)
			continue
		}
		if n <= 1 {
			delete(t.subs, key)
			gone = append(gone, key)
		} else {
			t.subs[key] = n - 1
		}

		if id == 0 {
			continue
		}
		name := DerivedName(key)
		cbs := t.callbacks[name]
		rest := removeCallback(cbs, id)
		if len(rest) == len(cbs) {
			m.log.Warnf("-- evt subCb %s cnt error, not find", name)
			continue
		}
		if len(rest) == 0 {
			delete(t.callbacks, name)
		} else {
			t.callbacks[name] = rest
		}
	}

	if len(gone) == 0 {
		return nil
	}
	activeSubscriptions.WithLabelValues(kind.String()).Sub(float64(len(gone)))
	var err error
	if kind == Pattern {
		err = m.transport.PUnsubscribe(ctx, gone...)
	} else {
		err = m.transport.Unsubscribe(ctx, gone...)
	}
	if err != nil {
		m.log.Warnf("un%s %v failed: %v", kind, gone, err)
		return fmt.Errorf("pubsub un%s %v: %w", kind, gone, err)
	}
	return nil
}

// Dispatch delivers msg to the generic observers and then to the callbacks
// attached under the message's derived event name.
func (m *Multiplexer) Dispatch(msg Message) {
	m.mu.Lock()
	observers := append([]callback(nil), m.observers...)
	targets := append([]callback(nil), m.tables[msg.Kind].callbacks[DerivedName(msg.Key())]...)
	m.mu.Unlock()

	for _, o := range observers {
		o.fn(msg)
	}
	for _, c := range targets {
		c.fn(msg)
	}
}

// Count returns the raw subscription count and the attached callback count
// for key.
func (m *Multiplexer) Count(kind Kind, key string) (subs, callbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[kind]
	return t.subs[key], len(t.callbacks[DerivedName(key)])
}

// Keys lists the keys currently subscribed on the transport.
func (m *Multiplexer) Keys(kind Kind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables[kind].subs))
	for k := range m.tables[kind].subs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset drops every subscription and callback, revoking them on the
// transport.
func (m *Multiplexer) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, t := range m.tables {
		if len(t.subs) == 0 {
			continue
		}
		keys := make([]string, 0, len(t.subs))
		for k := range t.subs {
			keys = append(keys, k)
		}
		activeSubscriptions.WithLabelValues(t.kind.String()).Sub(float64(len(keys)))
		var err error
		if t.kind == Pattern {
			err = m.transport.PUnsubscribe(ctx, keys...)
		} else {
			err = m.transport.Unsubscribe(ctx, keys...)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		t.subs = make(map[string]int)
		t.callbacks = make(map[string][]callback)
	}
	return firstErr
}

func removeCallback(cbs []callback, id ListenerID) []callback {
	for i, c := range cbs {
		if c.id == id {
			out := make([]callback, 0, len(cbs)-1)
			out = append(out, cbs[:i]...)
			return append(out, cbs[i+1:]...)
		}
	}
	return cbs
}
