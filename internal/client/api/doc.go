// Package api talks to the PHP REST backend of the compliance application.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): SyncTable
//     pushes a whole collection, LoadTable fetches it back, Diagnostic runs a
//     sync-debug.php action and Probe checks reachability.
//  2. An HTTP implementation (see HTTPClient) that applies a per-request
//     timeout, tags every request with the device id and refuses to decode
//     anything that is not JSON.
//
// # Error Handling
//
// Failures are reported as sentinel errors that callers match with
// errors.Is: ErrOffline, ErrTimeout, ErrMalformedResponse, ErrHTTPStatus and
// ErrRejected. Errors caused by a server answer are *ResponseError values
// carrying the status code, a body snippet and the server message.
// IsConfigError singles out answers that point at a broken deployment (PHP
// source or an HTML page instead of JSON), IsTransient the ones worth
// retrying later.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. Every operation honors the caller's
// context on top of its own timeout.
package api
