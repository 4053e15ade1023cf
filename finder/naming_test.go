package finder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) Log(level klog.Level, keyvals ...any) error {
	r.mu.Lock()
	r.lines = append(r.lines, level.String()+" "+fmt.Sprint(keyvals...))
	r.mu.Unlock()
	return nil
}

func (r *logRecorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

func TestNaming_UpDuringExpiryIsKept(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	var hook atomic.Pointer[func()]
	clock := func() time.Time {
		if fn := hook.Swap(nil); fn != nil {
			(*fn)()
		}
		return e.clock.Now()
	}
	f := New(nil, WithRedisClient(e.client), WithClock(clock), WithHeartbeatInterval(time.Hour))
	e.start(t, f, e.config("gateway", "billing"), "10.0.0.9", 8000)
	n := f.Backend().naming

	n.handleMessage("billing", event(t, ActionUp, "billing@10.0.0.1@9000", map[string]any{
		"ip": "10.0.0.1", "port": 9000,
		"metadata": map[string]any{"updateTm": e.clock.Now().UnixMilli()},
	}))
	e.clock.Advance(35 * time.Second)

	// an up push lands while the expired entry is being dropped
	up := func() {
		n.handleMessage("billing", event(t, ActionUp, "billing@10.0.0.2@9000", map[string]any{
			"ip": "10.0.0.2", "port": 9000,
			"metadata": map[string]any{"updateTm": e.clock.Now().UnixMilli()},
		}))
	}
	hook.Store(&up)

	hosts := f.GetService(ctx, "billing")
	require.Nil(t, hook.Load())
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.2", hosts[0].IP)

	again := f.GetService(ctx, "billing")
	require.Len(t, again, 1)
	assert.Equal(t, "10.0.0.2", again[0].IP)
}

func TestNaming_HeartbeatLoop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	channel := "nfinder:public:DEFAULT_GROUP:billing"

	ps := e.client.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = ps.Close() })
	_, err := ps.Receive(ctx)
	require.NoError(t, err)
	var ups atomic.Int64
	go func() {
		for msg := range ps.Channel() {
			var ev struct {
				Act Action `json:"act"`
			}
			if json.Unmarshal([]byte(msg.Payload), &ev) == nil && ev.Act == ActionUp {
				ups.Add(1)
			}
		}
	}()

	logs := &logRecorder{}
	f := New(logs, WithRedisClient(e.client), WithHeartbeatInterval(20*time.Millisecond))
	e.start(t, f, e.config("billing"), "10.0.0.1", 9000)

	groupKey, field := f.Backend().GroupKey(), f.Backend().InstanceName()
	updateTm := func() int64 {
		var rec struct {
			Metadata struct {
				UpdateTm int64 `json:"updateTm"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(e.mr.HGet(groupKey, field)), &rec); err != nil {
			return 0
		}
		return rec.Metadata.UpdateTm
	}

	first := updateTm()
	require.NotZero(t, first)
	require.Eventually(t, func() bool {
		return updateTm() > first && ups.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "ticks refresh updateTm and re-announce up")

	failed := logs.count("Error sending heartbeat")
	e.mr.SetError("ERR store unavailable")
	require.Eventually(t, func() bool {
		return logs.count("Error sending heartbeat") >= failed+2
	}, 2*time.Second, 5*time.Millisecond)
	stalled, upsStalled := updateTm(), ups.Load()
	e.mr.SetError("")

	require.Eventually(t, func() bool {
		return updateTm() > stalled && ups.Load() > upsStalled
	}, 2*time.Second, 5*time.Millisecond, "ticker survives failed ticks")

	require.NoError(t, f.Stop(ctx))
	n := f.Backend().naming
	n.mu.Lock()
	assert.Nil(t, n.hbCancel)
	n.mu.Unlock()
	assert.Empty(t, e.mr.HGet(groupKey, field))

	time.Sleep(50 * time.Millisecond)
	settled := ups.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, ups.Load(), "no up after stop")
	assert.Empty(t, e.mr.HGet(groupKey, field))
}
