// Package conf holds the typed bootstrap configuration scanned from the
// application's kratos config under the "hive" key.
package conf

import (
	"fmt"
	"strconv"

	"github.com/go-lynx/hive/finder"
)

// RootKey is the configuration key the bootstrap is scanned from.
const RootKey = "hive"

// Bootstrap is the root application configuration.
type Bootstrap struct {
	// NodeName identifies this node; defaults to "<ip>_<port>".
	NodeName string `json:"nodeName,omitempty"`
	Log      Log    `json:"log"`
	// CloseBanner suppresses the startup banner.
	CloseBanner bool `json:"closeBanner,omitempty"`
	// Plugins maps a plugin name to its declaration.
	Plugins  map[string]*PluginItem `json:"plugins,omitempty"`
	MService MService               `json:"mservice"`
	// Meta is merged into the finder instance metadata.
	Meta map[string]any `json:"meta,omitempty"`
}

// Log configures the application logger.
type Log struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
}

// MService describes the service endpoint this process exposes and the
// finder that advertises it.
type MService struct {
	Enable bool          `json:"enable"`
	IP     string        `json:"ip,omitempty"`
	Port   int           `json:"port,omitempty"`
	Finder finder.Config `json:"finder"`
}

// Addr returns "ip:port".
func (m MService) Addr() string {
	return m.IP + ":" + strconv.Itoa(m.Port)
}

// FinderEnabled reports whether the finder should be constructed.
func (m MService) FinderEnabled() bool {
	return m.Enable && m.Finder.Enable
}

// ConfigDistributionEnabled reports whether plugin configuration is served by
// the finder instead of local files.
func (m MService) ConfigDistributionEnabled() bool {
	return m.FinderEnabled() && m.Finder.Config.Enable
}

// Normalize fills defaults that depend on other fields. localIP is used when
// the configured ip is unset or obviously not an address.
func (b *Bootstrap) Normalize(localIP string) {
	if len(b.MService.IP) < 7 {
		b.MService.IP = localIP
	}
	if b.NodeName == "" {
		b.NodeName = fmt.Sprintf("%s_%d", b.MService.IP, b.MService.Port)
	}
	if b.Plugins == nil {
		b.Plugins = make(map[string]*PluginItem)
	}
}
