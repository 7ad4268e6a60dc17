package extract

import (
	"context"
	"fmt"
	"strings"

	"notelm/internal/apperr"
	"notelm/internal/observability"
)

// CompositeExtractor tries each extractor in order, skipping those that do
// not support the URL, and returns the first success. When every candidate
// fails it returns an ExternalService error aggregating the messages.
type CompositeExtractor struct {
	extractors []Extractor
}

// NewComposite builds the default extraction chain: Jina Reader when an API
// key is configured, then the local readability fallback, then PDF.
func NewComposite(jinaAPIKey string) *CompositeExtractor {
	var chain []Extractor
	if jinaAPIKey != "" {
		chain = append(chain, NewJinaExtractor(jinaAPIKey))
	}
	chain = append(chain, NewReadableExtractor(), NewPDFExtractor())
	return &CompositeExtractor{extractors: chain}
}

// NewCompositeOf builds a chain from explicit extractors, mainly for tests
// and alternate wirings.
func NewCompositeOf(extractors ...Extractor) *CompositeExtractor {
	return &CompositeExtractor{extractors: extractors}
}

func (c *CompositeExtractor) Supports(url string) bool {
	for _, e := range c.extractors {
		if e.Supports(url) {
			return true
		}
	}
	return false
}

func (c *CompositeExtractor) Extract(ctx context.Context, url string) (ExtractedContent, error) {
	log := observability.LoggerWithTrace(ctx)
	var errs []string

	for _, e := range c.extractors {
		if !e.Supports(url) {
			continue
		}
		out, err := e.Extract(ctx, url)
		if err == nil {
			log.Debug().Str("url", url).Str("extractor", fmt.Sprintf("%T", e)).Int("words", out.WordCount).Msg("extract_ok")
			return out, nil
		}
		if !apperr.IsKind(err, apperr.KindExternalService) {
			return ExtractedContent{}, err
		}
		log.Warn().Str("url", url).Str("extractor", fmt.Sprintf("%T", e)).Err(err).Msg("extract_fallback")
		errs = append(errs, fmt.Sprintf("%T: %v", e, err))
	}

	if len(errs) == 0 {
		return ExtractedContent{}, apperr.ExternalService("no extractor supports URL: %s", url)
	}
	return ExtractedContent{}, apperr.ExternalService("all extractors failed for %s: %s", url, strings.Join(errs, "; "))
}
