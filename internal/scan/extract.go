package scan

import (
	"fmt"
	"regexp"
)

var (
	postURLPattern    = regexp.MustCompile(`^(https://[^/]+/post/(\d+))(?:/.*)?$`)
	postImagePattern  = regexp.MustCompile(`^https://64\.media\.tumblr\.com/`)
	selfLinkTemplates = []string{
		`^https://%s\.tumblr\.com(?:/|$)`,
		`^https://www\.tumblr\.com/%s(?:/|$)`,
	}
)

// Rejection explains why an element produced no work item.
type Rejection int

const (
	// RejectNone means the element survived extraction.
	RejectNone Rejection = iota
	// RejectNoPostURL means no outbound link carried a canonical post URL.
	RejectNoPostURL
	// RejectSelfLink means an outbound link points at the user's own blog.
	RejectSelfLink
	// RejectNoImages means no embedded image matched the media host.
	RejectNoImages
	// RejectAllSeen means every embedded image was already seen this session.
	RejectAllSeen
)

func (r Rejection) String() string {
	switch r {
	case RejectNone:
		return "accepted"
	case RejectNoPostURL:
		return "no post url"
	case RejectSelfLink:
		return "own account link"
	case RejectNoImages:
		return "no post images"
	case RejectAllSeen:
		return "all images seen"
	default:
		return "unknown"
	}
}

// Extractor turns feed elements into work items, applying the rejection
// policy in a fixed order.
type Extractor struct {
	selfPatterns []*regexp.Regexp
}

// NewExtractor builds an extractor that filters out links to the named
// account's own blog.
func NewExtractor(accountName string) *Extractor {
	quoted := regexp.QuoteMeta(accountName)
	patterns := make([]*regexp.Regexp, 0, len(selfLinkTemplates))
	for _, tmpl := range selfLinkTemplates {
		patterns = append(patterns, regexp.MustCompile(fmt.Sprintf(tmpl, quoted)))
	}
	return &Extractor{selfPatterns: patterns}
}

// Extract derives an Item from an element, or reports why it was rejected.
// The checks run in order: post URL presence, self-authored link, image
// presence, and finally the session-level seen set.
func (e *Extractor) Extract(el Element, session *Session) (Item, Rejection) {
	links := el.Links()

	postURL := ""
	for _, link := range links {
		if m := postURLPattern.FindStringSubmatch(link); m != nil {
			postURL = m[1]
			break
		}
	}
	if postURL == "" {
		return Item{}, RejectNoPostURL
	}

	for _, link := range links {
		for _, pattern := range e.selfPatterns {
			if pattern.MatchString(link) {
				return Item{}, RejectSelfLink
			}
		}
	}

	imageURLs := extractPostImages(el.Images())
	if len(imageURLs) == 0 {
		return Item{}, RejectNoImages
	}

	allSeen := true
	for _, imageURL := range imageURLs {
		if !session.Seen(imageURL) {
			allSeen = false
			break
		}
	}
	if allSeen {
		return Item{}, RejectAllSeen
	}
	for _, imageURL := range imageURLs {
		session.MarkSeen(imageURL)
	}

	return Item{
		PostURL:   postURL,
		ImageURLs: imageURLs,
		Links:     uniqueLinks(links),
		RawText:   el.Text(),
	}, RejectNone
}

// extractPostImages picks, per image set, the highest-resolution candidate
// hosted on the feed's media domain.
func extractPostImages(sets []ImageSet) []string {
	urls := make([]string, 0, len(sets))
	for _, set := range sets {
		best := ""
		bestWidth := -1
		for _, src := range set.Sources {
			if !postImagePattern.MatchString(src.URL) {
				continue
			}
			if src.Width > bestWidth {
				best = src.URL
				bestWidth = src.Width
			}
		}
		if best != "" {
			urls = append(urls, best)
		}
	}
	return urls
}

func uniqueLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
