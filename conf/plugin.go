package conf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDependencies is returned when a plugin's dependency field is not
// a list of names.
var ErrInvalidDependencies = errors.New("invalid plugin dependencies")

// PluginItem is one entry of the plugins map.
type PluginItem struct {
	// Enable is tri-state: nil means not set, which differs from an explicit
	// false when the plugin gets enabled implicitly.
	Enable *bool `json:"enable,omitempty"`
	// Package selects the registered factory; defaults to the plugin name.
	Package string `json:"package,omitempty"`
	// Alias is the lookup name; defaults to "_<name>".
	Alias                string   `json:"alias,omitempty"`
	CfgName              string   `json:"cfgName,omitempty"`
	Dependencies         []string `json:"dependencies,omitempty"`
	OptionalDependencies []string `json:"optionalDependencies,omitempty"`
}

// Enabled reports whether the item is explicitly enabled.
func (p *PluginItem) Enabled() bool {
	return p.Enable != nil && *p.Enable
}

// ExplicitlyDisabled reports whether the item was set to enable: false.
func (p *PluginItem) ExplicitlyDisabled() bool {
	return p.Enable != nil && !*p.Enable
}

// SetEnabled sets the enable flag.
func (p *PluginItem) SetEnabled(v bool) {
	p.Enable = &v
}

// PackageOr returns the factory package, falling back to name.
func (p *PluginItem) PackageOr(name string) string {
	if p.Package != "" {
		return p.Package
	}
	return name
}

// UnmarshalJSON rejects dependency fields that are not lists of non-empty
// names, so a malformed declaration fails at load time.
func (p *PluginItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enable               *bool           `json:"enable"`
		Package              string          `json:"package"`
		Alias                string          `json:"alias"`
		CfgName              string          `json:"cfgName"`
		Dependencies         json.RawMessage `json:"dependencies"`
		OptionalDependencies json.RawMessage `json:"optionalDependencies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	deps, err := decodeNames("dependencies", raw.Dependencies)
	if err != nil {
		return err
	}
	opt, err := decodeNames("optionalDependencies", raw.OptionalDependencies)
	if err != nil {
		return err
	}
	*p = PluginItem{
		Enable:               raw.Enable,
		Package:              raw.Package,
		Alias:                raw.Alias,
		CfgName:              raw.CfgName,
		Dependencies:         deps,
		OptionalDependencies: opt,
	}
	return nil
}

func decodeNames(field string, raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of plugin names, got %s", ErrInvalidDependencies, field, raw)
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: %s[%d] is empty", ErrInvalidDependencies, field, i)
		}
	}
	return names, nil
}
