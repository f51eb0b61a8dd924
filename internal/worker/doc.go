// Package worker executes validated job records on the worker side.
//
// Each job moves through received -> parsed -> cache-check -> executing ->
// (success | failed) -> reported. Execution always happens inside a status
// session, so the dispatcher receives a processing message before any work
// starts and exactly one terminal message however execution ends, including
// a panic inside component code.
//
// Cache-check: cacheable components are fingerprinted over (component,
// action, data). A prior success under the same fingerprint short-circuits
// to a cached terminal status unless the job carries --skip-cache.
//
// Timeouts: the job's declared timeout bounds the client context. Killing a
// runaway external process belongs to the process runner's context handling
// or an external supervisor, not to this package.
package worker
