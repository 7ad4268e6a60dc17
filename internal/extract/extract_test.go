package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
)

func TestNewExtractedContent(t *testing.T) {
	out := NewExtractedContent("https://x.test/a", "Title", "one two  three")
	sum := sha256.Sum256([]byte("one two  three"))
	assert.Equal(t, hex.EncodeToString(sum[:]), out.ContentHash)
	assert.Equal(t, 3, out.WordCount)
}

func TestJinaExtractor(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.String()
		_, _ = w.Write([]byte("# Example Page\n\nSome body text."))
	}))
	defer srv.Close()

	e := NewJinaExtractor("key123")
	e.baseURL = srv.URL

	out, err := e.Extract(context.Background(), "https://example.com/doc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer key123", gotAuth)
	assert.Equal(t, "/https://example.com/doc", gotPath)
	assert.Equal(t, "Example Page", out.Title)
	assert.Equal(t, "https://example.com/doc", out.URL)
	assert.Positive(t, out.WordCount)
}

func TestJinaExtractorHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewJinaExtractor("")
	e.baseURL = srv.URL

	_, err := e.Extract(context.Background(), "https://example.com/doc")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
}

func TestReadableExtractor(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Widget Handbook</title></head><body>
<article><h1>Widget Handbook</h1>
<p>Widgets are assembled from sprockets and flanges. This paragraph exists so the
readability heuristics have enough prose to identify the main article content of
the page without falling back to boilerplate regions.</p>
<p>A second paragraph keeps the article dense enough to be scored well.</p>
</article></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	e := NewReadableExtractor()
	out, err := e.Extract(context.Background(), srv.URL+"/handbook")
	require.NoError(t, err)
	assert.Contains(t, out.Content, "sprockets")
	assert.NotEmpty(t, out.ContentHash)
}

func TestReadableExtractorSupports(t *testing.T) {
	e := NewReadableExtractor()
	assert.True(t, e.Supports("https://example.com/a"))
	assert.False(t, e.Supports("ftp://example.com/a"))
	assert.False(t, e.Supports("https://example.com/paper.pdf"))
}

func TestPDFExtractorSupports(t *testing.T) {
	e := NewPDFExtractor()
	assert.True(t, e.Supports("https://example.com/paper.PDF"))
	assert.False(t, e.Supports("https://example.com/paper.html"))
}

type stubExtractor struct {
	supports bool
	out      ExtractedContent
	err      error
	calls    int
}

func (s *stubExtractor) Supports(string) bool { return s.supports }

func (s *stubExtractor) Extract(_ context.Context, _ string) (ExtractedContent, error) {
	s.calls++
	return s.out, s.err
}

func TestCompositeFallsBackInOrder(t *testing.T) {
	first := &stubExtractor{supports: true, err: apperr.ExternalService("primary down")}
	skipped := &stubExtractor{supports: false}
	second := &stubExtractor{supports: true, out: NewExtractedContent("u", "T", "body")}

	c := NewCompositeOf(first, skipped, second)
	out, err := c.Extract(context.Background(), "https://x.test")
	require.NoError(t, err)
	assert.Equal(t, "T", out.Title)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, skipped.calls)
	assert.Equal(t, 1, second.calls)
}

func TestCompositeAggregatesFailures(t *testing.T) {
	a := &stubExtractor{supports: true, err: apperr.ExternalService("a down")}
	b := &stubExtractor{supports: true, err: apperr.ExternalService("b down")}

	_, err := NewCompositeOf(a, b).Extract(context.Background(), "https://x.test")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
}

func TestCompositeNoSupportingExtractor(t *testing.T) {
	_, err := NewCompositeOf(&stubExtractor{supports: false}).Extract(context.Background(), "mailto:x@y")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
}
