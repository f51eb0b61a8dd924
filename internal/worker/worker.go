package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kettleworks/dirigent/internal/component"
	"github.com/kettleworks/dirigent/internal/joblog"
	"github.com/kettleworks/dirigent/internal/log"
	"github.com/kettleworks/dirigent/internal/status"

	dcache "github.com/kettleworks/dirigent/internal/cache"
)

// DefaultResultTTL keeps a successful fingerprint for 12 hours unless
// configured otherwise.
const DefaultResultTTL = 12 * time.Hour

// cachedInfo is the terminal info sent when a prior success short-circuits
// execution.
const cachedInfo = "job skipped: prior success found in cache"

// Config tunes a Worker.
type Config struct {
	// ResultTTL is how long a successful job fingerprint stays cached.
	ResultTTL time.Duration
}

// Worker resolves components and runs their client operations.
type Worker struct {
	registry  *component.Registry
	cache     *dcache.Store
	jobs      *joblog.Log // optional; nil disables the job log
	resultTTL time.Duration
	logger    *slog.Logger
}

// New creates a Worker. jobs may be nil when no job log is configured.
func New(registry *component.Registry, store *dcache.Store, jobs *joblog.Log, cfg Config) *Worker {
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Worker{
		registry:  registry,
		cache:     store,
		jobs:      jobs,
		resultTTL: ttl,
		logger:    log.WithComponent("worker"),
	}
}

// Execute runs one job inside a status session on ch and returns the client
// result. Expected failure modes land in the result; the returned error is
// reserved for the session itself being unusable.
func (w *Worker) Execute(ctx context.Context, ch status.Channel, job *component.Job) (component.Result, error) {
	jobLogger := log.WithJob(job.ID).With("component", job.Component, "action", job.Action)
	startedAt := time.Now().UTC()

	sess, err := status.Begin(ch, job.ID)
	if err != nil {
		return component.Result{}, fmt.Errorf("begin status session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			jobLogger.Error("status session close failed", "error", err)
		}
	}()

	comp, ok := w.registry.Get(job.Component)
	if !ok {
		diag := fmt.Sprintf("component %q not found in registry", job.Component)
		jobLogger.Error(diag)
		sess.Fail(diag)
		res := component.Failure(diag)
		w.record(ctx, job, res, joblog.StatusFailed, startedAt)
		return res, nil
	}

	fp := fingerprint(job)
	if comp.Cacheable() && !job.SkipCache {
		if _, hit := w.cache.Get(fp); hit {
			jobLogger.Info("cache hit, skipping execution", "fingerprint", fp)
			sess.Succeed(cachedInfo)
			res := component.Result{Output: []byte(cachedInfo), OK: true}
			w.record(ctx, job, res, joblog.StatusCached, startedAt)
			return res, nil
		}
	}

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	jobLogger.Info("executing job")
	res := runClient(runCtx, comp, w.cache, job, jobLogger)

	if res.OK {
		sess.Succeed(string(res.Output))
		if comp.Cacheable() {
			w.cache.Set(fp, true, job.Component, w.resultTTL)
		}
		jobLogger.Info("job completed", "command", res.Command)
		w.record(ctx, job, res, joblog.StatusSucceeded, startedAt)
	} else {
		sess.Fail(string(res.Error))
		jobLogger.Error("job failed", "error", string(res.Error), "command", res.Command)
		w.record(ctx, job, res, joblog.StatusFailed, startedAt)
	}
	return res, nil
}

// runClient invokes the component's client operation, converting a panic in
// component code into a failed result so the terminal status still fires.
func runClient(ctx context.Context, comp component.Component, store *dcache.Store, job *component.Job, logger *slog.Logger) (res component.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("component panicked", "panic", r)
			res = component.Failure(fmt.Sprintf("component %q panicked: %v", job.Component, r))
		}
	}()
	return comp.Client(ctx, store, job)
}

// fingerprint derives a stable cache key for a job from its component,
// action, and data. json.Marshal sorts map keys, so equal jobs hash equal.
func fingerprint(job *component.Job) string {
	h := blake3.New()
	h.Write([]byte(job.Component))
	h.Write([]byte{0})
	h.Write([]byte(job.Action))
	h.Write([]byte{0})
	if data, err := json.Marshal(job.Data); err == nil {
		h.Write(data)
	}
	return fmt.Sprintf("job:%x", h.Sum(nil))
}

func (w *Worker) record(ctx context.Context, job *component.Job, res component.Result, st joblog.Status, startedAt time.Time) {
	if w.jobs == nil {
		return
	}
	entry := joblog.Entry{
		JobID:       job.ID,
		Component:   job.Component,
		Action:      job.Action,
		Status:      st,
		Command:     res.Command,
		Output:      string(res.Output),
		Error:       string(res.Error),
		CreatedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
	if err := w.jobs.Record(ctx, entry); err != nil {
		w.logger.Error("failed to record job outcome", "job_id", job.ID, "error", err)
	}
}
