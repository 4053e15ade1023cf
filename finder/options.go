package finder

import (
	"time"
)

const (
	// DefaultNamespace and DefaultGroup scope the store keys when unset.
	DefaultNamespace = "public"
	DefaultGroup     = "DEFAULT_GROUP"

	// DefaultPort is the self instance port when none is configured.
	DefaultPort = 18000

	// HeartbeatInterval is the period of self record refreshes.
	HeartbeatInterval = 10 * time.Second
	// LivenessWindow is how old updateTm may be before an instance is expired.
	LivenessWindow = 30 * time.Second

	// GroupListKey indexes every active group key.
	GroupListKey = "nfinder:groupList"
)

// Config mirrors the mservice.finder configuration section.
type Config struct {
	Enable bool         `json:"enable"`
	Base   BaseConfig   `json:"base"`
	Naming NamingConfig `json:"naming"`
	Config ConfigConfig `json:"config"`
}

type BaseConfig struct {
	Namespace string      `json:"namespace,omitempty"`
	Group     string      `json:"group,omitempty"`
	Redis     RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// NamingConfig controls self registration and service subscriptions.
type NamingConfig struct {
	Enable      bool                  `json:"enable"`
	ServiceName string                `json:"serviceName,omitempty"`
	Weight      float64               `json:"weight,omitempty"`
	Subscribe   []ServiceSubscription `json:"subscribe,omitempty"`
}

type ServiceSubscription struct {
	ServiceName string `json:"serviceName"`
}

// ConfigConfig controls config distribution.
type ConfigConfig struct {
	Enable bool `json:"enable"`
	// Dependencies are fetched once during Init and served from memory.
	Dependencies []string             `json:"dependencies,omitempty"`
	Subscribe    []ConfigSubscription `json:"subscribe,omitempty"`
}

type ConfigSubscription struct {
	DataID string `json:"dataId"`
	Alias  string `json:"alias,omitempty"`
}

// Name returns the alias, defaulting to the data id.
func (s ConfigSubscription) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.DataID
}

func (c *Config) withDefaults(serverID string) Config {
	out := *c
	if out.Base.Namespace == "" {
		out.Base.Namespace = DefaultNamespace
	}
	if out.Base.Group == "" {
		out.Base.Group = DefaultGroup
	}
	if out.Base.Redis.Addr == "" {
		out.Base.Redis.Addr = "localhost:6379"
	}
	if out.Base.Redis.DB == 0 {
		out.Base.Redis.DB = 1
	}
	if out.Naming.ServiceName == "" {
		out.Naming.ServiceName = serverID
	}
	return out
}

// GroupKey returns the hash key holding every instance of a namespace/group.
func GroupKey(namespace, group string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if group == "" {
		group = DefaultGroup
	}
	return "nfinder:" + namespace + ":" + group
}

// ServiceChannel returns the notification channel of a service.
func ServiceChannel(groupKey, service string) string {
	return groupKey + ":" + service
}

// ConfigKey returns the config hash of a group.
func ConfigKey(groupKey string) string {
	return groupKey + ":cfg"
}

// ConfigChannel returns the change channel of one config blob.
func ConfigChannel(groupKey, dataID string) string {
	return ConfigKey(groupKey) + ":" + dataID
}
