package finder

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/go-kratos/kratos/v2/config"
)

var _ config.Source = (*ConfigSource)(nil)

// ConfigSource exposes finder config blobs as a kratos config.Source. Each
// blob is nested under its data id, so config.Value("<dataId>.<field>")
// resolves into it.
type ConfigSource struct {
	f       *Finder
	dataIDs []string
}

// NewConfigSource creates a source over the given data ids.
func NewConfigSource(f *Finder, dataIDs ...string) *ConfigSource {
	return &ConfigSource{f: f, dataIDs: dataIDs}
}

func (s *ConfigSource) Load() ([]*config.KeyValue, error) {
	ctx := context.Background()
	out := make([]*config.KeyValue, 0, len(s.dataIDs))
	for _, id := range s.dataIDs {
		kv, err := s.load(ctx, id, true)
		if err != nil {
			return nil, err
		}
		if kv != nil {
			out = append(out, kv)
		}
	}
	return out, nil
}

func (s *ConfigSource) load(ctx context.Context, dataID string, preloaded bool) (*config.KeyValue, error) {
	var raw json.RawMessage
	if preloaded {
		raw, _ = s.f.Dependency(dataID)
	}
	if raw == nil {
		raw = s.f.GetConfig(ctx, dataID)
	}
	if raw == nil {
		return nil, nil
	}
	value, err := json.Marshal(map[string]json.RawMessage{dataID: raw})
	if err != nil {
		return nil, err
	}
	return &config.KeyValue{Key: dataID, Value: value, Format: "json"}, nil
}

// Watch re-reads a blob whenever its change channel fires.
func (s *ConfigSource) Watch() (config.Watcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &sourceWatcher{
		ctx:     ctx,
		cancel:  cancel,
		s:       s,
		changed: make(chan string, len(s.dataIDs)+1),
	}
	w.unsubscribe = s.f.OnConfigChange(func(_, _, dataID string) {
		if !slices.Contains(s.dataIDs, dataID) {
			return
		}
		select {
		case w.changed <- dataID:
		default:
		}
	})
	return w, nil
}

type sourceWatcher struct {
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe context.CancelFunc
	s           *ConfigSource
	changed     chan string
}

func (w *sourceWatcher) Next() ([]*config.KeyValue, error) {
	for {
		select {
		case <-w.ctx.Done():
			return nil, w.ctx.Err()
		case id := <-w.changed:
			kv, err := w.s.load(w.ctx, id, false)
			if err != nil {
				return nil, err
			}
			if kv == nil {
				continue
			}
			return []*config.KeyValue{kv}, nil
		}
	}
}

func (w *sourceWatcher) Stop() error {
	w.unsubscribe()
	w.cancel()
	return nil
}
