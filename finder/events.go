package finder

import (
	"context"
	"sync"
)

// ServicesChangeFunc observes the live instance list of a service.
type ServicesChangeFunc func(service string, instances []Instance)

// ConfigChangeFunc observes a config change notification. content is the
// raw message published on the change channel.
type ConfigChangeFunc func(alias, content, dataID string)

// notifier is a fire-and-forget observer list. Observers run synchronously
// on the notifying goroutine, in registration order.
type notifier[F any] struct {
	mu  sync.RWMutex
	seq uint64
	fns []observer[F]
}

type observer[F any] struct {
	id uint64
	fn F
}

func (n *notifier[F]) add(fn F) context.CancelFunc {
	n.mu.Lock()
	n.seq++
	id := n.seq
	n.fns = append(n.fns, observer[F]{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, o := range n.fns {
				if o.id == id {
					n.fns = append(n.fns[:i:i], n.fns[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier[F]) snapshot() []F {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]F, len(n.fns))
	for i, o := range n.fns {
		out[i] = o.fn
	}
	return out
}

// Events fans change notifications out to registered observers.
type Events struct {
	services notifier[ServicesChangeFunc]
	configs  notifier[ConfigChangeFunc]
}

// OnServicesChange registers fn; the returned func removes it.
func (e *Events) OnServicesChange(fn ServicesChangeFunc) context.CancelFunc {
	return e.services.add(fn)
}

// OnConfigChange registers fn; the returned func removes it.
func (e *Events) OnConfigChange(fn ConfigChangeFunc) context.CancelFunc {
	return e.configs.add(fn)
}

func (e *Events) emitServicesChange(service string, instances []Instance) {
	for _, fn := range e.services.snapshot() {
		cp := make([]Instance, len(instances))
		for i, ins := range instances {
			cp[i] = ins.Clone()
		}
		fn(service, cp)
	}
}

func (e *Events) emitConfigChange(alias, content, dataID string) {
	for _, fn := range e.configs.snapshot() {
		fn(alias, content, dataID)
	}
}
