package finder

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Instance is one process's registration record.
type Instance struct {
	InstanceID  string   `json:"instanceId"`
	ServiceName string   `json:"serviceName,omitempty"`
	IP          string   `json:"ip"`
	Port        int      `json:"port"`
	Healthy     bool     `json:"healthy"`
	Enabled     bool     `json:"enabled"`
	Weight      float64  `json:"weight"`
	Metadata    Metadata `json:"metadata"`
}

// UnmarshalJSON treats absent healthy/enabled as true and absent weight as 1,
// matching records written by other clients that omit them.
func (i *Instance) UnmarshalJSON(data []byte) error {
	type plain Instance
	p := plain{Healthy: true, Enabled: true, Weight: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Instance(p)
	return nil
}

// Field returns the hash field the instance is stored under.
func (i Instance) Field(service string) string {
	return service + "@" + i.IP + "@" + strconv.Itoa(i.Port)
}

// SameAddr reports whether o has the same ip and port.
func (i Instance) SameAddr(o Instance) bool {
	return i.IP == o.IP && i.Port == o.Port
}

// Alive applies the liveness filter at now.
func (i Instance) Alive(now time.Time) bool {
	return i.Healthy && i.Enabled && i.Metadata.UpdateTm > now.Add(-LivenessWindow).UnixMilli()
}

// Clone deep-copies the metadata extras.
func (i Instance) Clone() Instance {
	i.Metadata.Extra = maps.Clone(i.Metadata.Extra)
	return i
}

// Metadata carries the well-known instance metadata plus free-form keys.
// Timestamps are unix milliseconds.
type Metadata struct {
	AppName  string
	NodeName string
	RdCfgKey string
	CreateTm int64
	UpdateTm int64
	Extra    map[string]any
}

var metadataKeys = []string{"appName", "nodeName", "rdCfgKey", "createTm", "updateTm"}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(metadataKeys))
	for k, v := range m.Extra {
		out[k] = v
	}
	out["appName"] = m.AppName
	if m.NodeName != "" {
		out["nodeName"] = m.NodeName
	}
	if m.RdCfgKey != "" {
		out["rdCfgKey"] = m.RdCfgKey
	}
	out["createTm"] = m.CreateTm
	out["updateTm"] = m.UpdateTm
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Metadata
	var err error
	if out.AppName, err = stringField(raw, "appName"); err != nil {
		return err
	}
	if out.NodeName, err = stringField(raw, "nodeName"); err != nil {
		return err
	}
	if out.RdCfgKey, err = stringField(raw, "rdCfgKey"); err != nil {
		return err
	}
	if out.CreateTm, err = millisField(raw, "createTm"); err != nil {
		return err
	}
	if out.UpdateTm, err = millisField(raw, "updateTm"); err != nil {
		return err
	}
	for _, k := range metadataKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		out.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var x any
			if err := json.Unmarshal(v, &x); err != nil {
				return fmt.Errorf("metadata %s: %w", k, err)
			}
			out.Extra[k] = x
		}
	}
	*m = out
	return nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("metadata %s: %w", key, err)
	}
	return s, nil
}

func millisField(raw map[string]json.RawMessage, key string) (int64, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("metadata %s: %w", key, err)
	}
	return int64(f), nil
}

// Action is the kind of a service notification.
type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
	ActionStat Action = "stat"
)

// ServiceEvent is published on a service channel whenever an instance
// changes. InstanceID is the publisher's hash field, not Instance.InstanceID.
type ServiceEvent struct {
	Act        Action   `json:"act"`
	InstanceID string   `json:"instanceId"`
	Info       Instance `json:"info"`
}

// statInfo is the subset of a stat event that may be applied to a record.
// Weight is only applied when present.
type statInfo struct {
	IP      string   `json:"ip"`
	Port    int      `json:"port"`
	Weight  *float64 `json:"weight"`
	Enabled *bool    `json:"enabled"`
	Healthy *bool    `json:"healthy"`
}

func (s statInfo) apply(i *Instance) {
	if s.Weight != nil {
		i.Weight = *s.Weight
	}
	i.Enabled = s.Enabled == nil || *s.Enabled
	i.Healthy = s.Healthy == nil || *s.Healthy
}

// Host is the nacos-shaped view of an instance returned by GetService.
type Host struct {
	InstanceID                string   `json:"instanceId"`
	IP                        string   `json:"ip"`
	Port                      int      `json:"port"`
	Weight                    float64  `json:"weight"`
	Healthy                   bool     `json:"healthy"`
	Enabled                   bool     `json:"enabled"`
	Ephemeral                 bool     `json:"ephemeral"`
	ClusterName               string   `json:"clusterName"`
	ServiceName               string   `json:"serviceName"`
	Metadata                  Metadata `json:"metadata"`
	InstanceHeartBeatInterval int      `json:"instanceHeartBeatInterval"`
	InstanceHeartBeatTimeout  int      `json:"instanceHeartBeatTimeout"`
	InstanceIDGenerator       string   `json:"instanceIdGenerator"`
	IPDeleteTimeout           int      `json:"ipDeleteTimeout"`
}

func hostOf(i Instance) Host {
	return Host{
		InstanceID:                i.Field(i.ServiceName),
		IP:                        i.IP,
		Port:                      i.Port,
		Weight:                    i.Weight,
		Healthy:                   i.Healthy,
		Enabled:                   i.Enabled,
		ServiceName:               i.ServiceName,
		Metadata:                  i.Metadata,
		InstanceHeartBeatInterval: 5000,
		InstanceHeartBeatTimeout:  5000,
		IPDeleteTimeout:           30000,
	}
}
