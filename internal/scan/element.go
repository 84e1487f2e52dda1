package scan

import "context"

// ImageSource is one candidate in a responsive image set.
type ImageSource struct {
	URL   string
	Width int
}

// ImageSet is the candidate list for a single embedded image, typically
// parsed from an img srcset attribute.
type ImageSet struct {
	Sources []ImageSource
}

// Element is one feed post as rendered on the page. Elements are consumed
// front to back and removed once handled, whether or not they produced work.
type Element interface {
	// ID identifies the element within the current page for removal.
	ID() string
	// Links returns the element's outbound hyperlink targets in document
	// order, duplicates included.
	Links() []string
	// Text returns the element's visible text.
	Text() string
	// Images returns one candidate set per embedded image.
	Images() []ImageSet
	// Remove detaches the element so it is never visited again.
	Remove(ctx context.Context) error
}

// Feed produces unhandled elements in display order. ok is false when the
// feed has no unhandled element right now; more may appear after polling.
type Feed interface {
	Next(ctx context.Context) (el Element, ok bool, err error)
}

// Item is the unit of work extracted from a surviving element.
type Item struct {
	PostURL   string
	ImageURLs []string
	Links     []string
	RawText   string
}
