package extract

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"notelm/internal/apperr"
)

const maxFetchBytes = 8 * 1000 * 1000

// ReadableExtractor is the local fallback: fetch the page, extract the main
// article with readability, and render it to markdown.
type ReadableExtractor struct {
	client    *http.Client
	userAgent string
}

func NewReadableExtractor() *ReadableExtractor {
	return &ReadableExtractor{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "Mozilla/5.0 (compatible; NTLMCrawler/1.0)",
	}
}

func (e *ReadableExtractor) Supports(rawURL string) bool {
	if !isHTTPURL(rawURL) {
		return false
	}
	// PDFs go to the dedicated extractor.
	return !hasPDFPath(rawURL)
}

func (e *ReadableExtractor) Extract(ctx context.Context, rawURL string) (ExtractedContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "fetch request for %s", rawURL)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ExtractedContent{}, apperr.ExternalService("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	limited := io.LimitReader(resp.Body, maxFetchBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "read body of %s", rawURL)
	}
	if len(body) > maxFetchBytes {
		return ExtractedContent{}, apperr.ExternalService("response exceeds %d bytes for %s", maxFetchBytes, rawURL)
	}

	utf8Body, err := toUTF8(body, charsetOf(resp.Header.Get("Content-Type")))
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "charset decode for %s", rawURL)
	}
	pageHTML := string(utf8Body)

	finalURL := resp.Request.URL
	articleHTML := pageHTML
	title := ""
	if art, rerr := readability.FromReader(strings.NewReader(pageHTML), finalURL); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(origin(finalURL)))
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "render %s", rawURL)
	}
	content := strings.TrimSpace(md)
	if content == "" {
		return ExtractedContent{}, apperr.ExternalService("no extractable content at %s", rawURL)
	}

	return NewExtractedContent(rawURL, title, content), nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

func toUTF8(b []byte, label string) ([]byte, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func origin(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func hasPDFPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
