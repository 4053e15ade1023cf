package finder

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ReadGroups lists every group key that ever registered an instance.
func ReadGroups(ctx context.Context, rd redis.Cmdable) ([]string, error) {
	groups, err := rd.SMembers(ctx, GroupListKey).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(groups)
	return groups, nil
}

// ReadInstances returns every stored record of service in groupKey, live or
// not. Records that fail to decode are skipped.
func ReadInstances(ctx context.Context, rd redis.Cmdable, groupKey, service string) ([]Instance, error) {
	return readInstances(ctx, rd, groupKey, service, nil)
}

// ReadConfig returns the raw blob stored for dataID, nil when absent.
func ReadConfig(ctx context.Context, rd redis.Cmdable, groupKey, dataID string) (json.RawMessage, error) {
	val, err := rd.HGet(ctx, ConfigKey(groupKey), dataID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(val), nil
}

// readInstances matches fields by "<service>@" so a service never matches
// another whose name it prefixes.
func readInstances(ctx context.Context, rd redis.Cmdable, groupKey, service string,
	warn func(field string, err error)) ([]Instance, error) {
	keys, err := rd.HKeys(ctx, groupKey).Result()
	if err != nil {
		return nil, err
	}
	prefix := service + "@"
	var fields []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			fields = append(fields, k)
		}
	}
	if len(fields) == 0 {
		return []Instance{}, nil
	}

	vals, err := rd.HMGet(ctx, groupKey, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ins Instance
		if err := json.Unmarshal([]byte(s), &ins); err != nil {
			if warn != nil {
				warn(fields[i], err)
			}
			continue
		}
		ins.ServiceName = service
		out = append(out, ins)
	}
	return out, nil
}
