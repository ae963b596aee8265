package dom

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPProviderFetchParsesDocument(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/products/widget",
		httpmock.NewStringResponder(200, `<html><body><h1 class="title">Widget</h1></body></html>`))

	p := NewHTTPProvider(HTTPOptions{}, testLogger())
	p.client.Transport = httpmock.DefaultTransport

	doc, err := p.Fetch(context.Background(), "https://shop.example.com/products/widget", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Widget", doc.Find("h1.title").Text())
}

func TestHTTPProviderFetchErrorStatuses(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	httpmock.RegisterResponder("GET", "https://shop.example.com/throttled",
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"))

	p := NewHTTPProvider(HTTPOptions{}, testLogger())
	p.client.Transport = httpmock.DefaultTransport

	_, err := p.Fetch(context.Background(), "https://shop.example.com/missing", FetchOptions{})
	assert.ErrorContains(t, err, "status 404")

	_, err = p.Fetch(context.Background(), "https://shop.example.com/throttled", FetchOptions{})
	assert.ErrorContains(t, err, "rate limited")
}

type stubProvider struct {
	doc    *goquery.Document
	err    error
	calls  int
	closed bool
}

func (s *stubProvider) Fetch(context.Context, string, FetchOptions) (*goquery.Document, error) {
	s.calls++
	return s.doc, s.err
}

func (s *stubProvider) Close() error {
	s.closed = true
	return nil
}

func docFromString(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestFallbackUsesSecondaryOnPrimaryFailure(t *testing.T) {
	rendered := docFromString(t, "<html><body>rendered</body></html>")
	plain := docFromString(t, "<html><body>plain</body></html>")

	t.Run("primary succeeds", func(t *testing.T) {
		primary := &stubProvider{doc: rendered}
		secondary := &stubProvider{doc: plain}
		f := &Fallback{Primary: primary, Secondary: secondary}

		doc, err := f.Fetch(context.Background(), "https://x.example.com", FetchOptions{})
		require.NoError(t, err)
		assert.Same(t, rendered, doc)
		assert.Zero(t, secondary.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &stubProvider{err: errors.New("browser crashed")}
		secondary := &stubProvider{doc: plain}
		f := &Fallback{Primary: primary, Secondary: secondary}

		doc, err := f.Fetch(context.Background(), "https://x.example.com", FetchOptions{})
		require.NoError(t, err)
		assert.Same(t, plain, doc)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, secondary.calls)
	})
}

func TestFallbackCloseClosesBoth(t *testing.T) {
	primary := &stubProvider{}
	secondary := &stubProvider{}
	f := &Fallback{Primary: primary, Secondary: secondary}

	require.NoError(t, f.Close())
	assert.True(t, primary.closed)
	assert.True(t, secondary.closed)
}
