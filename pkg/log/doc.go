// Package log provides the logging abstraction used by every pushwire
// component.
//
// Engine packages never talk to a concrete logging library. They accept a
// Logger and emit structured fields (host, conn_id, id, token, attempt,
// status, worker) through it.
//
// # Usage
//
// Console output through zerolog:
//
//	logger := log.NewZerologAdapter(log.LevelInfo)
//
// Wrap an existing zerolog.Logger:
//
//	logger := log.NewZerologAdapterWithLogger(zl)
//
// Discard everything (tests, library callers that do not care):
//
//	logger := log.NewNoopLogger()
//
// A nil Logger is never valid inside the engine; constructors call OrNoop
// to substitute the no-op implementation.
package log
