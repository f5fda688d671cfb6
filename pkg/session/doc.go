// Package session owns one gateway connection at a time and streams
// notification frames over it.
//
// A Session opens its connection lazily on the first Send, retries failed
// writes on a fresh connection up to Config.Retries attempts, and keeps every
// frame written since the last reconciliation in send order. Reconcile drains
// the error responses the gateway sent back, links them to their outcomes and
// resends everything written after the first rejected frame over a new
// connection, since the gateway discards the remainder of a stream once it
// rejects a frame. Close reconciles before closing.
//
// A Session is driven by a single goroutine. State and ConnID may be called
// from any goroutine.
package session
