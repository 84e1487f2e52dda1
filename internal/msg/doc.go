// Package msg defines the JSON-RPC protocol spoken between the CLI and the
// agent over a unix socket, plus the client and server plumbing for it.
package msg
