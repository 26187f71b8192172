// Package session manages the lifecycle of headless-browser automation
// sessions under two hard ceilings: a concurrency cap on simultaneous
// sessions and a per-session request allowance.
//
// # Architecture
//
// The package is built around three cooperating pieces:
//
//  1. Registry: owns the map of live sessions, enforces the concurrency
//     cap at creation time, and serializes access to each session's engine
//     handle through a per-session exclusion lock.
//  2. Controller: acquires handles through the retry executor and releases
//     them best-effort, bounded by a release timeout.
//  3. Reaper: a fixed-interval sweep that closes sessions past their idle
//     deadline.
//
// # Session Lifecycle
//
// A session is created on an explicit Create call or the first
// GetOrCreate of an unknown id, starts active, and has every operation
// against it advance its activity timestamp and request count. It
// transitions to closing when any of explicit close, idle timeout, the
// request-count limit, or an unrecoverable error occurs, and becomes
// closed once its handle release completes or the bounded release timeout
// elapses. Closed sessions leave the registry; their capacity slot frees
// regardless of release outcome.
//
// # Concurrency
//
// Operations on different sessions run concurrently. Operations on the
// same session are mutually exclusive: the engine handle is not safe for
// concurrent use, so each runs under the session's lock, with no ordering
// guarantee beyond one completing before the next begins. The registry
// lock covers only the slot table and never spans I/O.
//
// Usage counters flow to a usage.Monitor, which observes every transition
// without participating in the critical path.
package session
