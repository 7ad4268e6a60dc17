// Package extract turns source URLs into clean text for ingestion.
// A composite extractor tries a remote reader first and falls back to
// local extraction, accumulating failures.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ExtractedContent is the normalized output of any extractor.
type ExtractedContent struct {
	URL         string
	Title       string
	Content     string
	ContentHash string // SHA-256 of Content, hex
	WordCount   int
}

// NewExtractedContent computes the hash and word count for extracted text.
func NewExtractedContent(url, title, content string) ExtractedContent {
	sum := sha256.Sum256([]byte(content))
	return ExtractedContent{
		URL:         url,
		Title:       title,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		WordCount:   len(strings.Fields(content)),
	}
}

// Extractor is the port every concrete extractor implements.
type Extractor interface {
	Extract(ctx context.Context, url string) (ExtractedContent, error)
	Supports(url string) bool
}

func isHTTPURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
