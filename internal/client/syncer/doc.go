// Package syncer keeps in-memory entity collections consistent with the
// local cache and the REST API.
//
// One generic engine, Collection, serves every table: mutations are applied
// optimistically, persisted to the cache synchronously and pushed to the
// server after a debounce delay. Periodic, reconnect and background triggers
// reuse the same push, guarded by a per-table single-flight and a failure
// circuit that suspends automatic attempts after Policy.MaxAttempts
// consecutive failures. Grouped pairs an item collection with its group
// collection, and Manager owns the whole set for the current user.
package syncer
