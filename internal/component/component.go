// Package component defines the contract every pluggable action family
// implements: a declared argument schema, a control-side server operation
// that turns an exec string into a validated job record, and a worker-side
// client operation that performs the action.
package component

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kettleworks/dirigent/internal/cache"
	"github.com/kettleworks/dirigent/internal/schema"
)

// DefaultTimeout bounds a job's client execution unless overridden with
// --timeout.
const DefaultTimeout = 600 * time.Second

// Job is the structured, validated record a component's server operation
// produces. Every field the matching client action needs is present and
// consistent before the record leaves the control side.
type Job struct {
	ID        string         `json:"id"`
	Component string         `json:"component"`
	Action    string         `json:"action,omitempty"`
	SkipCache bool           `json:"skip_cache,omitempty"`
	RunOnce   bool           `json:"run_once,omitempty"`
	Timeout   time.Duration  `json:"timeout"`
	Data      map[string]any `json:"data"`
	Unknown   []string       `json:"unknown,omitempty"`
}

// Strings reads a list field out of Data, tolerating the []any shape the
// field takes after a JSON round trip.
func (j *Job) Strings(field string) []string {
	switch v := j.Data[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// Result is the outcome of one client operation: captured output, captured
// error text, a success flag, and (when one was run) the literal command
// line, for observability.
type Result struct {
	Output  []byte
	Error   []byte
	OK      bool
	Command string
}

// Failure builds a failed Result whose command slot carries the diagnostic,
// matching how dependency-missing failures are reported.
func Failure(diagnostic string) Result {
	return Result{Error: []byte(diagnostic), Command: diagnostic}
}

// Component is one pluggable action family.
type Component interface {
	// Name is the action name the registry dispatches on.
	Name() string

	// Schema returns the immutable argument schema.
	Schema() *schema.Schema

	// Cacheable reports whether successful executions may be skipped when a
	// prior result exists under the same fingerprint.
	Cacheable() bool

	// Server parses an exec string into job on the control side, failing
	// fast on any cross-field violation.
	Server(exec []string, job *Job, argVars map[string]any) error

	// Client performs the action on the worker side. Expected failure modes
	// (missing binary, non-zero exit) are folded into the Result, never
	// raised past this boundary.
	Client(ctx context.Context, store *cache.Store, job *Job) Result
}

// Registry maps action names to components. It is an explicit handle passed
// to the worker, not process-global state.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Component
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Component)}
}

// Register adds c under its name.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if name == "" {
		return fmt.Errorf("component name is empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("component %q registered twice", name)
	}
	r.byName[name] = c
	return nil
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the registered component names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
