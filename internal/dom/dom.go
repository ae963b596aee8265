// Package dom turns URLs into queryable document trees. Two providers exist
// behind one contract: a plain fetch-and-parse path and a scripted headless
// browser path for sites that render product data client-side.
package dom

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// FetchOptions tune a single document fetch.
type FetchOptions struct {
	// WaitForSelectors are selectors the scripted provider waits on before
	// snapshotting the page. The plain provider ignores them.
	WaitForSelectors []string
}

// Provider fetches a URL and returns its document tree.
type Provider interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*goquery.Document, error)
	Close() error
}

// Fallback wraps a scripted provider with a plain one: when the scripted path
// fails the plain path gets a chance before the fetch is reported as failed.
type Fallback struct {
	Primary   Provider
	Secondary Provider
}

func (f *Fallback) Fetch(ctx context.Context, url string, opts FetchOptions) (*goquery.Document, error) {
	doc, err := f.Primary.Fetch(ctx, url, opts)
	if err == nil {
		return doc, nil
	}
	return f.Secondary.Fetch(ctx, url, opts)
}

func (f *Fallback) Close() error {
	err := f.Primary.Close()
	if err2 := f.Secondary.Close(); err == nil {
		err = err2
	}
	return err
}
