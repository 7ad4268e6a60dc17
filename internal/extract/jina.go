package extract

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"notelm/internal/apperr"
)

const defaultJinaBaseURL = "https://r.jina.ai"

// JinaExtractor reads URLs through the Jina Reader API, which converts pages
// to clean markdown.
type JinaExtractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewJinaExtractor(apiKey string) *JinaExtractor {
	return &JinaExtractor{
		apiKey:  apiKey,
		baseURL: defaultJinaBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *JinaExtractor) Supports(url string) bool { return isHTTPURL(url) }

func (e *JinaExtractor) Extract(ctx context.Context, url string) (ExtractedContent, error) {
	readerURL := e.baseURL + "/" + url
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerURL, nil)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "jina reader request for %s", url)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "jina reader fetch for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ExtractedContent{}, apperr.ExternalService("jina reader HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExtractedContent{}, apperr.Wrap(apperr.KindExternalService, err, "jina reader body for %s", url)
	}

	content := string(body)
	return NewExtractedContent(url, titleFromMarkdown(content), content), nil
}

// titleFromMarkdown returns the first level-one heading, if any.
func titleFromMarkdown(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
