// Package fetch downloads candidate and post images as base64 payloads for
// the matcher. Pixiv-hosted files go through the local origin-spoofing
// proxy; tumblr and twitter CDN files are fetched directly.
package fetch
