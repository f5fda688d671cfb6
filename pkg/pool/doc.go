// Package pool runs several workers against one gateway.
//
// A batch pool partitions its items into contiguous groups, one per worker,
// and starts the workers with a short delay between them. A queue pool
// hands each added item to the next worker that is not busy, falling back
// to strict round robin when every worker is busy.
package pool
