package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"nonalt/internal/browser"
	"nonalt/internal/logging"
	"nonalt/internal/services"
)

const documentBodyJS = `document.body.outerHTML`

// Dashboard walks feed posts on an already-open dashboard tab. It works on
// DOM snapshots: the page body is re-read whenever every previously parsed
// element has been handled, which also picks up posts loaded by infinite
// scroll in the meantime.
type Dashboard struct {
	tab    browser.Tab
	logger *slog.Logger

	handled map[string]struct{}
	queue   []*pageElement
}

// DashboardOption adjusts dashboard behavior.
type DashboardOption func(*Dashboard)

// WithDashboardLogger sets the feed logger.
func WithDashboardLogger(logger *slog.Logger) DashboardOption {
	return func(d *Dashboard) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDashboard wraps a tab showing the feed page. The tab stays owned by the
// caller.
func NewDashboard(tab browser.Tab, opts ...DashboardOption) *Dashboard {
	d := &Dashboard{
		tab:     tab,
		logger:  logging.NewNop(),
		handled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next unhandled post element, refreshing the snapshot when
// the parsed batch is spent.
func (d *Dashboard) Next(ctx context.Context) (Element, bool, error) {
	if len(d.queue) == 0 {
		if err := d.refresh(ctx); err != nil {
			return nil, false, err
		}
	}
	if len(d.queue) == 0 {
		return nil, false, nil
	}
	el := d.queue[0]
	d.queue = d.queue[1:]
	d.handled[el.id] = struct{}{}
	return el, true, nil
}

func (d *Dashboard) refresh(ctx context.Context) error {
	var body string
	if err := d.tab.Eval(ctx, documentBodyJS, &body); err != nil {
		return services.Wrap(services.ErrTransient, "scan", "refresh", "read page body", err)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrTransient, "scan", "refresh", "parse page body", err)
	}

	fresh := 0
	for _, node := range findPostNodes(doc) {
		id := attrValue(node, "data-id")
		if id == "" {
			continue
		}
		if _, ok := d.handled[id]; ok {
			continue
		}
		d.queue = append(d.queue, &pageElement{
			dashboard: d,
			id:        id,
			links:     collectLinks(node),
			text:      collectText(node),
			images:    collectImageSets(node),
		})
		fresh++
	}
	if fresh > 0 {
		d.logger.Debug("snapshot refreshed", logging.Int("elements", fresh))
	}
	return nil
}

func (d *Dashboard) remove(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector('article[data-id=%s]');
  if (el !== null) {
    el.remove();
  }
})()`, strconv.Quote(id))
	if err := d.tab.Eval(ctx, expr, nil); err != nil {
		return services.Wrap(services.ErrTransient, "scan", "remove", "detach element", err)
	}
	return nil
}

// pageElement is one parsed post article.
type pageElement struct {
	dashboard *Dashboard
	id        string
	links     []string
	text      string
	images    []ImageSet
}

func (e *pageElement) ID() string         { return e.id }
func (e *pageElement) Links() []string    { return e.links }
func (e *pageElement) Text() string       { return e.text }
func (e *pageElement) Images() []ImageSet { return e.images }

func (e *pageElement) Remove(ctx context.Context) error {
	return e.dashboard.remove(ctx, e.id)
}

// findPostNodes returns every article element carrying a data-id, in
// document order.
func findPostNodes(doc *html.Node) []*html.Node {
	var nodes []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "article" && attrValue(n, "data-id") != "" {
			nodes = append(nodes, n)
			return false
		}
		return true
	})
	return nodes
}

func collectLinks(root *html.Node) []string {
	var links []string
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrValue(n, "href"); href != "" {
				links = append(links, href)
			}
		}
		return true
	})
	return links
}

func collectText(root *html.Node) string {
	var parts []string
	walk(root, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func collectImageSets(root *html.Node) []ImageSet {
	var sets []ImageSet
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "img" {
			return true
		}
		set := ImageSet{Sources: parseSrcSet(attrValue(n, "srcset"))}
		if len(set.Sources) == 0 {
			if src := attrValue(n, "src"); src != "" {
				set.Sources = []ImageSource{{URL: src}}
			}
		}
		if len(set.Sources) > 0 {
			sets = append(sets, set)
		}
		return true
	})
	return sets
}

// parseSrcSet splits a srcset attribute into candidates. Width descriptors
// ("640w") are parsed; density descriptors and bare URLs get width zero.
func parseSrcSet(srcset string) []ImageSource {
	var sources []ImageSource
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) == 0 {
			continue
		}
		source := ImageSource{URL: fields[0]}
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			if width, err := strconv.Atoi(strings.TrimSuffix(fields[1], "w")); err == nil {
				source.Width = width
			}
		}
		sources = append(sources, source)
	}
	return sources
}

// attrValue returns the value of the named attribute, or "" when absent.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// walk visits nodes depth first. The callback returns false to skip a
// node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}
