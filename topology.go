package hive

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	klog "github.com/go-kratos/kratos/v2/log"

	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/log"
	"github.com/go-lynx/hive/plugins"
)

// OrderPlugins computes the load order of the enabled plugins in items.
//
// Enabled plugins are traversal roots, visited in lexical order so the result
// is stable across runs. Any plugin pulled in as a required dependency is
// enabled as a side effect; overriding an explicit enable: false is logged as
// a warning. A missing dependency or a cycle yields a *plugins.SequenceError
// and no order at all.
func OrderPlugins(items map[string]*conf.PluginItem, logger klog.Logger) ([]string, error) {
	if items == nil {
		return nil, errors.New("plugins config is nil")
	}
	h := log.NewHelper(logger, "module", "topology")

	nodes := make(map[string]*plugins.Node, len(items))
	roots := make([]string, 0, len(items))
	for name, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: plugin [%s] has no declaration", conf.ErrInvalidDependencies, name)
		}
		if err := validateNames(name, item); err != nil {
			return nil, err
		}
		nodes[name] = &plugins.Node{
			Name:                 name,
			Enabled:              item.Enabled(),
			Dependencies:         item.Dependencies,
			OptionalDependencies: item.OptionalDependencies,
		}
		if item.Enabled() {
			roots = append(roots, name)
		}
	}
	if len(roots) == 0 {
		return nil, nil
	}
	sort.Strings(roots)

	res := plugins.Sequence(nodes, roots)
	if len(res.Sequence) == 0 {
		return nil, sequenceError(items, res)
	}

	requiredBy := make(map[string][]string)
	var implicit []string
	for _, name := range res.Sequence {
		for _, dep := range items[name].Dependencies {
			requiredBy[dep] = append(requiredBy[dep], name)
		}
		if !items[name].Enabled() {
			implicit = append(implicit, name)
		}
	}
	if len(implicit) > 0 {
		h.Infof("Following plugins will be enabled implicitly.\n%s", requirements(implicit, requiredBy))

		var overridden []string
		for _, name := range implicit {
			if items[name].ExplicitlyDisabled() {
				overridden = append(overridden, name)
			}
		}
		if len(overridden) > 0 {
			h.Warnf("Following plugins will be enabled implicitly that is disabled by application.\n%s",
				requirements(overridden, requiredBy))
		}
		for _, name := range implicit {
			items[name].SetEnabled(true)
		}
	}
	return res.Sequence, nil
}

func validateNames(name string, item *conf.PluginItem) error {
	for _, dep := range append(slices.Clone(item.Dependencies), item.OptionalDependencies...) {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("%w: plugin [%s] declares an empty dependency", conf.ErrInvalidDependencies, name)
		}
	}
	return nil
}

// sequenceError lists, for each missing name, every declared plugin that
// requires it.
func sequenceError(items map[string]*conf.PluginItem, res plugins.SequenceResult) *plugins.SequenceError {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	err := &plugins.SequenceError{Cycles: res.Recursive}
	for _, miss := range res.Missing {
		md := plugins.MissingDependency{Name: miss}
		for _, name := range names {
			if slices.Contains(items[name].Dependencies, miss) {
				md.RequiredBy = append(md.RequiredBy, name)
			}
		}
		err.Missing = append(err.Missing, md)
	}
	return err
}

func requirements(names []string, requiredBy map[string][]string) string {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  - %s required by [%s]", name, strings.Join(requiredBy[name], ", ")))
	}
	return strings.Join(lines, "\n")
}
