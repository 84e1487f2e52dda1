package resolve

import (
	"context"

	"nonalt/internal/browser"
	"nonalt/internal/match"
)

// Resolver extracts full-resolution source images for one platform from a
// feed post's outbound links and raw text.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, b browser.Browser, links []string, rawText string) ([]match.Candidate, error)
}

// FirstMatch tries each resolver in order and returns the first non-empty
// candidate set. Later resolvers are not consulted once one produces images.
func FirstMatch(ctx context.Context, b browser.Browser, resolvers []Resolver, links []string, rawText string) ([]match.Candidate, error) {
	for _, resolver := range resolvers {
		candidates, err := resolver.Resolve(ctx, b, links, rawText)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, nil
}

// uniqueStrings collapses duplicates while preserving first-seen order.
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
