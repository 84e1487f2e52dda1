// Package gate implements the deduplication gate between matching and
// queueing. It consults three stores in priority order: the scan session's
// working set, the pending reblog queue, and the completed-repost history.
package gate
