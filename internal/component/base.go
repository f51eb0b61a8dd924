package component

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kettleworks/dirigent/internal/blueprint"
	"github.com/kettleworks/dirigent/internal/cache"
	"github.com/kettleworks/dirigent/internal/log"
	"github.com/kettleworks/dirigent/internal/runner"
	"github.com/kettleworks/dirigent/internal/schema"
)

// ArgsCacheKey is the cache key holding the argument values blueprints are
// rendered against.
const ArgsCacheKey = "args"

// Base carries the framework-common behavior every component inherits: the
// common option set, exec-string parsing, blueprint rendering, cache
// helpers, and process execution.
type Base struct {
	name     string
	schema   *schema.Schema
	renderer *blueprint.Renderer
	logger   *slog.Logger
}

// NewBase builds a Base named name whose schema starts with the common
// options (--exec-help, --skip-cache, --run-once, --timeout). Component
// constructors extend the schema before first use; it is immutable after
// that.
func NewBase(name, desc string) *Base {
	s := schema.New(desc)
	s.MustAdd(schema.Option{Name: "exec-help", Type: schema.Bool, Help: "Show this execution help message."})
	s.MustAdd(schema.Option{Name: "skip-cache", Type: schema.Bool, Help: "Force a task to skip the on client cache."})
	s.MustAdd(schema.Option{Name: "run-once", Type: schema.Bool, Help: "Force a given task to run once."})
	s.MustAdd(schema.Option{Name: "timeout", Type: schema.Int, Default: 600, Help: "Set the action timeout in seconds."})

	return &Base{
		name:     name,
		schema:   s,
		renderer: blueprint.New(),
		logger:   log.WithComponent(name),
	}
}

// Name returns the component's action name.
func (b *Base) Name() string { return b.name }

// Schema returns the component's argument schema.
func (b *Base) Schema() *schema.Schema { return b.schema }

// Cacheable defaults to true; components override when a prior result must
// never short-circuit execution.
func (b *Base) Cacheable() bool { return true }

// Logger returns the component-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// ParseExec tokenizes the exec fragments, parses them against the schema,
// overlays caller-supplied pre-formatted values, and fills the job's common
// fields. A --exec-help request aborts with *schema.HelpError carrying the
// help text.
func (b *Base) ParseExec(exec []string, job *Job, argVars map[string]any) (*schema.Args, error) {
	args, err := b.schema.Parse(schema.Sanitize(exec))
	if err != nil {
		return nil, err
	}
	if args.Bool("exec-help") {
		return nil, &schema.HelpError{Text: b.schema.Help()}
	}

	for key, value := range argVars {
		args.Set(key, value)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Component = b.name
	job.SkipCache = args.Bool("skip-cache")
	job.RunOnce = args.Bool("run-once")
	job.Timeout = time.Duration(args.Int("timeout")) * time.Second
	job.Unknown = args.Unknown
	if job.Data == nil {
		job.Data = make(map[string]any)
	}
	return args, nil
}

// Run executes an external command through the process runner.
func (b *Base) Run(ctx context.Context, req runner.Request) (runner.Result, error) {
	return runner.Run(ctx, req)
}

// Render substitutes values into content, passing content through unchanged
// when values is empty.
func (b *Base) Render(content string, values map[string]any) (string, error) {
	return b.renderer.Render(content, values)
}

// BlueprintFile reads path, renders it against the cached argument values,
// and writes the result back in place. The file is re-written even when
// rendering was a pass-through so the write side effects are preserved.
// Returns false, with the failure logged, on any read, render, or write
// problem.
func (b *Base) BlueprintFile(store *cache.Store, path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		b.logger.Error("file blueprint failure", "path", path, "error", err)
		return false
	}

	values, _ := store.GetDefault(ArgsCacheKey, map[string]any(nil)).(map[string]any)
	rendered, err := b.Render(string(content), values)
	if err != nil {
		b.logger.Error("file blueprint failure", "path", path, "error", err)
		return false
	}
	if rendered == "" && len(content) > 0 {
		b.logger.Error("file blueprint produced empty output", "path", path)
		return false
	}

	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		b.logger.Error("file blueprint failure", "path", path, "error", err)
		return false
	}
	b.logger.Info("file blueprinted", "path", path)
	return true
}

// SetCache writes value under key. With valueUpdate, value is deep-merged
// into the existing mapping instead of replacing it.
func (b *Base) SetCache(store *cache.Store, key string, value any, valueUpdate bool, tag string, ttl time.Duration) error {
	if valueUpdate {
		mapping, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("merge update for %q requires a mapping value", key)
		}
		return store.Merge(key, mapping, tag, ttl)
	}
	store.Set(key, value, tag, ttl)
	return nil
}
