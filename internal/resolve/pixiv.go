package resolve

import (
	"context"
	"log/slog"
	"regexp"

	"nonalt/internal/browser"
	"nonalt/internal/fetch"
	"nonalt/internal/logging"
	"nonalt/internal/match"
)

var (
	pixivArtworkLinkPattern = regexp.MustCompile(`^https://href\.li/\?https://(?:www\.)?pixiv\.net(?:/en)?(/artworks/\d+)`)
	pixivLegacyLinkPattern  = regexp.MustCompile(`^https://href\.li/\?http://www\.pixiv\.net/member_illust\.php\?mode=[^&]+&illust_id=(\d+)`)
	pixivImagePattern       = regexp.MustCompile(`^https://i\.pximg\.net/img-original/img/\d{4}(?:/\d{2}){5}/\d+_p0\.\w+`)
)

// artistAnchorJS finds the artist profile link on an artwork page. The
// anchor labeled with the works-listing text carries the canonical user URL.
const artistAnchorJS = `(() => {
    for (const a of document.querySelectorAll('a')) {
        if (a.innerText !== '作品一覧を見る') continue;
        const m = /^(https:\/\/www\.pixiv\.net\/users\/\d+)\/artworks$/.exec(a.href);
        if (m) return m[1];
    }
    return null;
})()`

// expandArtworksJS clicks the "n/m" page expander so every page of a
// multi-image artwork gets an original-resolution link in the DOM.
const expandArtworksJS = `(() => {
    const walk = (element) => {
        if (element.nodeName === 'DIV' && /^\d+\/\d+$/.test(element.innerText || '') && element.onclick) {
            element.click();
            return true;
        }
        for (const child of element.children) {
            if (walk(child)) return true;
        }
        return false;
    };
    return walk(document.body);
})()`

const documentLinksJS = `Array.from(document.links).map((a) => a.href)`

// Pixiv resolves artwork links wrapped by the feed's redirector into
// original-resolution images.
type Pixiv struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// NewPixiv constructs the pixiv resolver.
func NewPixiv(fetcher *fetch.Fetcher, logger *slog.Logger) *Pixiv {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pixiv{fetcher: fetcher, logger: logging.NewComponentLogger(logger, "resolve.pixiv")}
}

func (p *Pixiv) Name() string { return "pixiv" }

// Resolve extracts artwork URLs from the outbound links, opens each in an
// isolated tab, and collects the original images tagged with the artist URL.
// One artwork failing does not abort the rest.
func (p *Pixiv) Resolve(ctx context.Context, b browser.Browser, links []string, rawText string) ([]match.Candidate, error) {
	var sourceURLs []string
	for _, link := range links {
		if m := pixivArtworkLinkPattern.FindStringSubmatch(link); m != nil {
			sourceURLs = append(sourceURLs, "https://www.pixiv.net"+m[1])
		}
	}
	for _, link := range links {
		if m := pixivLegacyLinkPattern.FindStringSubmatch(link); m != nil {
			sourceURLs = append(sourceURLs, "https://www.pixiv.net/artworks/"+m[1])
		}
	}

	var candidates []match.Candidate
	for _, sourceURL := range uniqueStrings(sourceURLs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resolved, err := p.resolveArtwork(ctx, b, sourceURL)
		if err != nil {
			p.logger.Warn("artwork resolution failed",
				logging.String(logging.FieldSourceURL, sourceURL),
				logging.Error(err))
			continue
		}
		candidates = append(candidates, resolved...)
	}
	return candidates, nil
}

func (p *Pixiv) resolveArtwork(ctx context.Context, b browser.Browser, sourceURL string) ([]match.Candidate, error) {
	tab, err := b.OpenTab(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	var artistURL *string
	if err := tab.Eval(ctx, artistAnchorJS, &artistURL); err != nil {
		return nil, err
	}
	if artistURL == nil || *artistURL == "" {
		p.logger.Warn("no artist URL on artwork page",
			logging.String(logging.FieldSourceURL, sourceURL))
		return nil, nil
	}

	if err := tab.Eval(ctx, expandArtworksJS, nil); err != nil {
		return nil, err
	}

	var links []string
	if err := tab.Eval(ctx, documentLinksJS, &links); err != nil {
		return nil, err
	}

	var imageURLs []string
	for _, link := range links {
		if pixivImagePattern.MatchString(link) {
			imageURLs = append(imageURLs, link)
		}
	}

	reqs := make([]fetch.Request, 0, len(imageURLs))
	for _, imageURL := range uniqueStrings(imageURLs) {
		reqs = append(reqs, fetch.Request{ImageURL: imageURL, Referrer: sourceURL})
	}
	refs, err := p.fetcher.FetchAll(ctx, reqs)
	if err != nil {
		return nil, err
	}

	candidates := make([]match.Candidate, 0, len(refs))
	for _, ref := range refs {
		candidates = append(candidates, match.Candidate{ImageRef: ref, ArtistURL: *artistURL})
	}
	return candidates, nil
}
