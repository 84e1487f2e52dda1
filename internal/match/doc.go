// Package match wraps the local image-matching service. It submits the feed
// post's embedded images together with resolved source candidates and
// applies the acceptance policy: every source image must score at or above
// the threshold against a distinct candidate or the whole post is rejected.
package match
