package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op   string
	keys []string
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeTransport) record(op string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: op, keys: append([]string(nil), keys...)})
	return f.err
}

func (f *fakeTransport) Subscribe(_ context.Context, ch ...string) error {
	return f.record("subscribe", ch)
}

func (f *fakeTransport) Unsubscribe(_ context.Context, ch ...string) error {
	return f.record("unsubscribe", ch)
}

func (f *fakeTransport) PSubscribe(_ context.Context, p ...string) error {
	return f.record("psubscribe", p)
}

func (f *fakeTransport) PUnsubscribe(_ context.Context, p ...string) error {
	return f.record("punsubscribe", p)
}

func (f *fakeTransport) ops() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestMultiplexer_CountTransitions(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{}
	m := NewMultiplexer(ft, nil)

	var a, b recorder
	idA, err := m.Subscribe(ctx, a.handle, "orders")
	require.NoError(t, err)
	idB, err := m.Subscribe(ctx, b.handle, "orders")
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	subs, cbs := m.Count(Channel, "orders")
	assert.Equal(t, 2, subs)
	assert.Equal(t, 2, cbs)
	assert.Equal(t, []call{{op: "subscribe", keys: []string{"orders"}}}, ft.ops())

	require.NoError(t, m.Unsubscribe(ctx, idA, "orders"))
	subs, cbs = m.Count(Channel, "orders")
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, cbs)
	assert.Len(t, ft.ops(), 1, "transport subscription must survive")

	m.Dispatch(Message{Kind: Channel, Channel: "orders", Payload: "x"})
	assert.Zero(t, a.len())
	assert.Equal(t, 1, b.len())

	require.NoError(t, m.Unsubscribe(ctx, idB, "orders"))
	subs, cbs = m.Count(Channel, "orders")
	assert.Zero(t, subs)
	assert.Zero(t, cbs)
	assert.Equal(t, call{op: "unsubscribe", keys: []string{"orders"}}, ft.ops()[1])
	assert.Empty(t, m.Keys(Channel))
}

func TestMultiplexer_MismatchedUnsubscribeIsNoop(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{}
	m := NewMultiplexer(ft, nil)

	require.NoError(t, m.Unsubscribe(ctx, 0, "never"))
	require.NoError(t, m.PUnsubscribe(ctx, 42, "never.*"))
	assert.Empty(t, ft.ops())

	_, err := m.Subscribe(ctx, nil, "a")
	require.NoError(t, err)
	// unknown listener id still releases the raw reference
	require.NoError(t, m.Unsubscribe(ctx, 99, "a"))
	subs, _ := m.Count(Channel, "a")
	assert.Zero(t, subs)
}

func TestMultiplexer_ArrayWithCallbackIsRejected(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{}
	m := NewMultiplexer(ft, nil)

	id, err := m.Subscribe(ctx, func(Message) {}, "a", "b")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, ft.ops())

	id, err = m.Subscribe(ctx, nil, "a", "b")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, []call{{op: "subscribe", keys: []string{"a", "b"}}}, ft.ops())
	assert.Equal(t, []string{"a", "b"}, m.Keys(Channel))
}

func TestMultiplexer_DispatchOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMultiplexer(&fakeTransport{}, nil)

	var seen []string
	cancel := m.Observe(func(msg Message) { seen = append(seen, "generic:"+msg.Key()) })
	_, err := m.PSubscribe(ctx, func(msg Message) { seen = append(seen, "pattern:"+msg.Channel) }, "svc.*")
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, func(msg Message) { seen = append(seen, "channel:"+msg.Channel) }, "svc.a")
	require.NoError(t, err)

	m.Dispatch(Message{Kind: Pattern, Pattern: "svc.*", Channel: "svc.a"})
	m.Dispatch(Message{Kind: Channel, Channel: "svc.a"})
	m.Dispatch(Message{Kind: Channel, Channel: "other"})

	assert.Equal(t, []string{
		"generic:svc.*", "pattern:svc.a",
		"generic:svc.a", "channel:svc.a",
		"generic:other",
	}, seen)

	cancel()
	seen = nil
	m.Dispatch(Message{Kind: Channel, Channel: "other"})
	assert.Empty(t, seen)
}

func TestMultiplexer_TransportErrorKeepsCount(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{err: errors.New("connection reset")}
	m := NewMultiplexer(ft, nil)

	_, err := m.Subscribe(ctx, nil, "a")
	assert.Error(t, err)
	subs, _ := m.Count(Channel, "a")
	assert.Equal(t, 1, subs)

	ft.err = nil
	require.NoError(t, m.Reset(ctx))
	assert.Empty(t, m.Keys(Channel))
	assert.Equal(t, "unsubscribe", ft.ops()[1].op)
}

func TestRedisTransport_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr := NewRedisTransport(ctx, client)
	t.Cleanup(func() { _ = tr.Close() })
	m := NewMultiplexer(tr, nil)
	go tr.Pump(ctx, m)

	var direct, pattern recorder
	id, err := m.Subscribe(ctx, direct.handle, "nfinder:public:DEFAULT_GROUP:billing")
	require.NoError(t, err)
	_, err = m.PSubscribe(ctx, pattern.handle, "nfinder:public:*")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1 && mr.PubSubNumPat() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "nfinder:public:DEFAULT_GROUP:billing", `{"act":"up"}`).Err())
	require.Eventually(t, func() bool { return direct.len() == 1 && pattern.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	pattern.mu.Lock()
	got := pattern.msgs[0]
	pattern.mu.Unlock()
	assert.Equal(t, Pattern, got.Kind)
	assert.Equal(t, "nfinder:public:*", got.Pattern)
	assert.Equal(t, `{"act":"up"}`, got.Payload)

	require.NoError(t, m.Unsubscribe(ctx, id, "nfinder:public:DEFAULT_GROUP:billing"))
	require.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 0 }, 2*time.Second, 10*time.Millisecond)
}
