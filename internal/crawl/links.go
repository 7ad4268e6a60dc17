// Package crawl traverses a seed URL breadth-first, feeding new pages into
// the ingestion pipeline.
package crawl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"notelm/internal/apperr"
)

const crawlerUserAgent = "NTLMCrawler/1.0"

// Link is an outgoing link discovered on a page.
type Link struct {
	URL        string
	AnchorText string
}

var nonHTTPSchemes = []string{"mailto:", "javascript:", "tel:", "ftp:", "data:"}

// LinkDiscoverer fetches pages and extracts normalized same-domain links.
// Fetches share a token-bucket limiter so crawls stay polite.
type LinkDiscoverer struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewLinkDiscoverer(requestsPerSecond float64) *LinkDiscoverer {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &LinkDiscoverer{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// DiscoverLinks fetches pageURL and returns its outgoing links after
// normalization, deduplication, exact-host filtering, and the optional
// include/exclude patterns.
func (d *LinkDiscoverer) DiscoverLinks(ctx context.Context, pageURL, domainHost string, include, exclude *regexp.Regexp) ([]Link, error) {
	body, err := d.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	links := extractLinks(body, pageURL)
	links = filterByDomain(links, domainHost)
	links = filterByPattern(links, include, exclude)
	return links, nil
}

func (d *LinkDiscoverer) fetch(ctx context.Context, pageURL string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.KindExternalService, err, "crawl rate limiter")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExternalService, err, "crawl request for %s", pageURL)
	}
	req.Header.Set("User-Agent", crawlerUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExternalService, err, "crawl fetch %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", apperr.ExternalService("HTTP %d for %s", resp.StatusCode, pageURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExternalService, err, "crawl body of %s", pageURL)
	}
	return string(body), nil
}

// extractLinks walks the parsed HTML and collects href targets of <a>
// elements, normalized against the page URL. First occurrence wins.
func extractLinks(pageHTML, pageURL string) []Link {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []Link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := hrefOf(n); ok {
				if normalized, ok := normalizeURL(href, base); ok && !seen[normalized] {
					seen[normalized] = true
					links = append(links, Link{URL: normalized, AnchorText: anchorText(n)})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func hrefOf(n *html.Node) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href := strings.TrimSpace(attr.Val)
			if href == "" || strings.HasPrefix(href, "#") {
				return "", false
			}
			lower := strings.ToLower(href)
			for _, scheme := range nonHTTPSchemes {
				if strings.HasPrefix(lower, scheme) {
					return "", false
				}
			}
			return href, true
		}
	}
	return "", false
}

// normalizeURL resolves href against the page URL and drops the fragment.
// Query string and trailing slash are preserved.
func normalizeURL(href string, base *url.URL) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func filterByDomain(links []Link, domainHost string) []Link {
	out := links[:0:0]
	for _, l := range links {
		u, err := url.Parse(l.URL)
		if err != nil {
			continue
		}
		if u.Hostname() == domainHost {
			out = append(out, l)
		}
	}
	return out
}

func filterByPattern(links []Link, include, exclude *regexp.Regexp) []Link {
	out := links[:0:0]
	for _, l := range links {
		if include != nil && !include.MatchString(l.URL) {
			continue
		}
		if exclude != nil && exclude.MatchString(l.URL) {
			continue
		}
		out = append(out, l)
	}
	return out
}
