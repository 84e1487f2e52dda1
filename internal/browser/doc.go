// Package browser abstracts the browsing contexts the preflight pipeline
// scans and resolves through. The concrete driver speaks the Chrome
// DevTools protocol against a locally running browser started with a
// remote-debugging port.
package browser
