package dom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

// BrowserProvider is the scripted-rendering path: navigate with a headless
// Chromium, wait for the recipe's selectors, then snapshot the rendered HTML
// into the same document tree the plain path produces.
type BrowserProvider struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type BrowserOptions struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
}

func DefaultBrowserOptions() *BrowserOptions {
	return &BrowserOptions{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      defaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
	}
}

func NewBrowserProvider(opts *BrowserOptions, logger *slog.Logger) (*BrowserProvider, error) {
	if opts == nil {
		opts = DefaultBrowserOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &BrowserProvider{
		pw:      pw,
		browser: browser,
		context: bctx,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser_provider"),
	}, nil
}

func (p *BrowserProvider) Fetch(ctx context.Context, url string, opts FetchOptions) (*goquery.Document, error) {
	page, err := p.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page.SetDefaultTimeout(float64(p.timeout.Milliseconds()))

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	for _, selector := range opts.WaitForSelectors {
		if err := page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(float64(p.timeout.Milliseconds())),
		}); err != nil {
			p.logger.Warn("wait-for selector not found", "selector", selector, "url", url)
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content of %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

func (p *BrowserProvider) Close() error {
	var errs []error

	if p.context != nil {
		if err := p.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
