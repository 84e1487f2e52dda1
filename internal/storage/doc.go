// Package storage persists preflight state in SQLite: the FIFO reblog
// queue, the completed-repost history with quota-driven eviction, and the
// post-to-images map consulted during repost tagging. Writes assume the
// pipeline's single-flight cap; the store adds no locking of its own beyond
// SQLite's.
package storage
