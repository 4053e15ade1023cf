package finder

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-kratos/kratos/v2/registry"
)

var _ registry.Discovery = (*Discovery)(nil)

// Discovery adapts a Finder to the kratos registry.Discovery interface so
// kratos clients can resolve "discovery:///<service>" targets.
type Discovery struct {
	f *Finder
}

// NewDiscovery creates a kratos discovery backed by f.
func NewDiscovery(f *Finder) *Discovery {
	return &Discovery{f: f}
}

func (d *Discovery) GetService(ctx context.Context, service string) ([]*registry.ServiceInstance, error) {
	return toServiceInstances(d.f.GetService(ctx, service)), nil
}

// Watch returns a watcher whose first Next yields the current hosts and each
// later Next blocks until the service changes.
func (d *Discovery) Watch(ctx context.Context, service string) (registry.Watcher, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		ctx:     ctx,
		cancel:  cancel,
		service: service,
		d:       d,
		changes: make(chan []Instance, 1),
	}
	w.unsubscribe = d.f.OnServicesChange(func(s string, instances []Instance) {
		if s != service {
			return
		}
		select {
		case <-w.changes:
		default:
		}
		w.changes <- instances
	})
	return w, nil
}

type watcher struct {
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe context.CancelFunc
	service     string
	d           *Discovery
	changes     chan []Instance
	started     bool
}

func (w *watcher) Next() ([]*registry.ServiceInstance, error) {
	if !w.started {
		w.started = true
		return w.d.GetService(w.ctx, w.service)
	}
	select {
	case <-w.ctx.Done():
		return nil, w.ctx.Err()
	case instances := <-w.changes:
		hosts := make([]Host, 0, len(instances))
		for _, ins := range instances {
			ins.ServiceName = w.service
			hosts = append(hosts, hostOf(ins))
		}
		return toServiceInstances(hosts), nil
	}
}

func (w *watcher) Stop() error {
	w.unsubscribe()
	w.cancel()
	return nil
}

func toServiceInstances(hosts []Host) []*registry.ServiceInstance {
	out := make([]*registry.ServiceInstance, 0, len(hosts))
	for _, h := range hosts {
		md := map[string]string{
			"appName":  h.Metadata.AppName,
			"nodeName": h.Metadata.NodeName,
			"weight":   strconv.FormatFloat(h.Weight, 'f', -1, 64),
		}
		scheme := "http"
		version := ""
		for k, v := range h.Metadata.Extra {
			s := fmt.Sprint(v)
			md[k] = s
			switch k {
			case "scheme":
				scheme = s
			case "version":
				version = s
			}
		}
		out = append(out, &registry.ServiceInstance{
			ID:        h.InstanceID,
			Name:      h.ServiceName,
			Version:   version,
			Metadata:  md,
			Endpoints: []string{scheme + "://" + net.JoinHostPort(h.IP, strconv.Itoa(h.Port))},
		})
	}
	return out
}
