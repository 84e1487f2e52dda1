// Package reblog drains the pending repost queue: tag annotation from the
// artists registry, repost credential extraction, form submission, and
// confirmation against the user's own blog page.
package reblog
