// Package worker runs a Session on its own goroutine in one of two modes.
//
// A batch worker sends a fixed list of items in order and exits. A queue
// worker stays connected and sends whatever is added to it until it is
// stopped or its context is cancelled. Both restart their connection every
// Config.MaxPerConnection notifications, which also reconciles error
// responses on the closing connection.
//
// Errors that make the session unusable (connection failures, exhausted
// retries) are recorded as critical errors and reported to the progress
// listener. They end a batch but a queue worker keeps going.
//
// # Identifiers
//
// A worker numbered n (n >= 1) tags its k-th notification with n<<24 | k, so
// identifiers stay unique across the workers of a pool. An unnumbered worker
// uses k alone.
package worker
