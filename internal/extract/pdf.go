package extract

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"notelm/internal/apperr"
)

// PDFExtractor downloads .pdf sources and extracts their plain text.
type PDFExtractor struct {
	client *http.Client
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{client: &http.Client{Timeout: 30 * time.Second}}
}

func (e *PDFExtractor) Supports(rawURL string) bool {
	return isHTTPURL(rawURL) && hasPDFPath(rawURL)
}

func (e *PDFExtractor) Extract(ctx context.Context, rawURL string) (ExtractedContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf request for %s", rawURL)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ExtractedContent{}, apperr.ExternalService("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf body of %s", rawURL)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf parse %s", rawURL)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf text %s", rawURL)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "pdf text %s", rawURL)
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return ExtractedContent{}, apperr.ExternalService("empty pdf text at %s", rawURL)
	}
	return NewExtractedContent(rawURL, "", content), nil
}
