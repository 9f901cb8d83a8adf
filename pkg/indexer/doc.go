// Package indexer bridges the watcher's event stream and the index service.
// It coalesces bursts of events into minimal batched mutations: changes queue
// by path with last-write-wins semantics, a debounce window restarts on each
// new change, and a longer batch window absorbs correlated multi-file edits
// before anything is applied. Failing changes retry a bounded number of times
// and are then dropped with the miss recorded on the store.
package indexer
