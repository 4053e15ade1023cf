package plugins

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPluginNotFound indicates that a requested plugin could not be found
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginAlreadyExists indicates two plugins resolved to the same alias
	ErrPluginAlreadyExists = errors.New("plugin already exists")

	// ErrPluginNotInitialized indicates use of a plugin before its runtime was bound
	ErrPluginNotInitialized = errors.New("plugin not initialized")

	// ErrFactoryNotFound indicates no factory was registered for a plugin package
	ErrFactoryNotFound = errors.New("plugin factory not found")
)

// PluginError represents a detailed error that occurred during plugin operations
type PluginError struct {
	// Plugin identifies the plugin where the error occurred
	Plugin string

	// Operation describes the action that was being performed when the error occurred
	Operation string

	// Message provides a detailed description of the error
	Message string

	// Err is the underlying error that caused this PluginError
	Err error
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin %s: %s failed: %s (%v)", e.Plugin, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("plugin %s: %s failed: %s", e.Plugin, e.Operation, e.Message)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// NewPluginError creates a new PluginError with the given details
func NewPluginError(plugin, operation, message string, err error) *PluginError {
	return &PluginError{
		Plugin:    plugin,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// MissingDependency is a referenced plugin that is not declared, with the
// plugins that reference it.
type MissingDependency struct {
	Name       string
	RequiredBy []string
}

// SequenceError reports every missing dependency and every cycle found while
// ordering plugins. It is fatal: no partial order is ever returned.
type SequenceError struct {
	Missing []MissingDependency
	Cycles  [][]string
}

func (e *SequenceError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		names = append(names, m.Name)
	}
	cycles := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		cycles = append(cycles, strings.Join(c, " -> "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "sequencify plugins has problem, missing: [%s], recursive: [%s]",
		strings.Join(names, ", "), strings.Join(cycles, "; "))
	for _, m := range e.Missing {
		fmt.Fprintf(&b, "\n\t>> Plugin [%s] is disabled or missed, but is required by [%s]",
			m.Name, strings.Join(m.RequiredBy, ", "))
	}
	for _, c := range cycles {
		fmt.Fprintf(&b, "\n\t>> Circular dependency: %s", c)
	}
	return b.String()
}
