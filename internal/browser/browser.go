package browser

import "context"

// Tab is one isolated browsing context. Implementations evaluate JavaScript
// in the page and report results as JSON values.
type Tab interface {
	// Navigate loads a URL and waits for the document to settle. When the
	// page-load timeout expires, resource loading is stopped and navigation
	// succeeds with whatever DOM exists.
	Navigate(ctx context.Context, url string) error
	// Eval runs a JavaScript expression and unmarshals its value into out.
	// A nil out discards the result.
	Eval(ctx context.Context, expression string, out any) error
	// Close tears the tab down. Safe to call more than once.
	Close() error
}

// Browser opens isolated tabs. The scan session and the source resolvers
// share one Browser and tear down every tab they open.
type Browser interface {
	OpenTab(ctx context.Context, url string) (Tab, error)
}
