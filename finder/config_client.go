package finder

import (
	"context"
	"encoding/json"
	"errors"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-lynx/hive/pubsub"
)

// ConfigClient reads JSON config blobs from the group config hash and
// forwards change notifications to observers.
type ConfigClient struct {
	f   *RedisFinder
	log *klog.Helper
	key string
}

func newConfigClient(f *RedisFinder) *ConfigClient {
	return &ConfigClient{f: f, log: f.log, key: ConfigKey(f.groupKey)}
}

// Init preloads the configured dependencies and subscribes to the change
// channel of every configured data id.
func (c *ConfigClient) Init(ctx context.Context) {
	cfg := c.f.cfg.Config
	for _, dataID := range cfg.Dependencies {
		if v := c.Get(ctx, dataID); v != nil {
			c.f.setDependency(dataID, v)
		}
	}

	for _, sub := range cfg.Subscribe {
		sub := sub
		channel := ConfigChannel(c.f.groupKey, sub.DataID)
		c.log.Infof("subscribe cfg: %s", channel)
		_, err := c.f.mux.Subscribe(ctx, func(msg pubsub.Message) {
			c.f.events.emitConfigChange(sub.Name(), msg.Payload, sub.DataID)
		}, channel)
		if err != nil {
			c.log.Warnf("subscribe cfg %s: %v", channel, err)
		}
	}
}

// Get returns the blob stored for dataID. A missing field, an unreachable
// store and malformed JSON all yield nil.
func (c *ConfigClient) Get(ctx context.Context, dataID string) json.RawMessage {
	ctx, span := tracer.Start(ctx, "finder.getConfig",
		trace.WithAttributes(attribute.String("finder.data_id", dataID)))
	defer span.End()

	val, err := c.f.rd.HGet(ctx, c.key, dataID).Result()
	switch {
	case errors.Is(err, redis.Nil) || (err == nil && val == ""):
		configFetchTotal.WithLabelValues("miss").Inc()
		c.log.Warnf("Config [%s] not found from %s", dataID, c.key)
		return nil
	case err != nil:
		configFetchTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		c.log.Warnf("Config [%s] read from %s: %v", dataID, c.key, err)
		return nil
	}

	if !json.Valid([]byte(val)) {
		configFetchTotal.WithLabelValues("invalid").Inc()
		c.log.Errorf("Failed to parse config %s", dataID)
		return nil
	}
	configFetchTotal.WithLabelValues("ok").Inc()
	return json.RawMessage(val)
}
