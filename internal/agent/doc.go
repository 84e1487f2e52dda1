// Package agent composes the preflight pipeline (fetch, resolve, match,
// gate), the scan session, and the repost executor behind the unix socket
// protocol.
package agent
