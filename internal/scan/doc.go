// Package scan implements the preflight scan loop: walking feed posts in
// display order, extracting work items, and pipelining them through a single
// in-flight preflight request while preserving FIFO response order.
package scan
