package plugins

import (
	"slices"
)

// Node is one entry of the graph handed to Sequence.
type Node struct {
	Name                 string
	Enabled              bool
	Dependencies         []string
	OptionalDependencies []string
}

// SequenceResult is the outcome of Sequence. When Missing or Recursive is
// non-empty Sequence is always empty.
type SequenceResult struct {
	// Sequence lists names so that every dependency precedes its dependents.
	Sequence []string
	// Missing lists required names that have no node.
	Missing []string
	// Recursive lists every cycle found, each as the traversal path with the
	// repeated name appended.
	Recursive [][]string
}

// Sequence orders the nodes reachable from roots by depth-first traversal.
//
// Root order and each node's dependency order are preserved. Optional
// dependencies are traversed for ordering but only kept in the result when
// some required edge also reaches them; a missing optional dependency is
// skipped silently.
func Sequence(nodes map[string]*Node, roots []string) SequenceResult {
	s := &sequencer{
		nodes:    nodes,
		requires: make(map[string]bool, len(nodes)),
		seen:     make(map[string]bool, len(nodes)),
	}
	s.visit(roots, false)

	res := SequenceResult{Missing: s.missing, Recursive: s.recursive}
	if len(s.missing) > 0 || len(s.recursive) > 0 {
		res.Sequence = []string{}
		return res
	}
	res.Sequence = make([]string, 0, len(s.order))
	for _, name := range s.order {
		if s.requires[name] {
			res.Sequence = append(res.Sequence, name)
		}
	}
	return res
}

type sequencer struct {
	nodes map[string]*Node

	// requires memoizes names reached through required edges only.
	requires map[string]bool
	seen     map[string]bool
	order    []string

	missing   []string
	recursive [][]string
	nest      []string
}

// visit is order sensitive: a name first reached in optional mode is not
// memoized, so a later required edge traverses it again and marks it. An
// iterative rewrite must keep that revisit.
func (s *sequencer) visit(names []string, optional bool) {
	for _, name := range names {
		if s.requires[name] {
			continue
		}

		node, ok := s.nodes[name]
		switch {
		case !ok:
			if optional {
				continue
			}
			s.missing = append(s.missing, name)
		case slices.Contains(s.nest, name):
			cycle := append(slices.Clone(s.nest), name)
			s.recursive = append(s.recursive, cycle)
		case len(node.Dependencies) > 0 || len(node.OptionalDependencies) > 0:
			s.nest = append(s.nest, name)
			if len(node.Dependencies) > 0 {
				s.visit(node.Dependencies, optional)
			}
			if len(node.OptionalDependencies) > 0 {
				s.visit(node.OptionalDependencies, true)
			}
			s.nest = s.nest[:len(s.nest)-1]
		}

		if !optional {
			s.requires[name] = true
		}
		if !s.seen[name] {
			s.seen[name] = true
			s.order = append(s.order, name)
		}
	}
}
