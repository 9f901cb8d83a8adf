// Package async provides safe concurrent execution primitives for background
// tasks: fire-and-forget goroutines with panic recovery and timeouts (SafeGo),
// a bounded worker pool with error collection (WorkerPool), and concurrent
// slice processing over a pool (Batch).
//
// The index uses SafeGo for snapshot writes and Batch for reconciling a
// loaded snapshot against the filesystem; the search layer uses SafeGo for
// history writes.
package async
