package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserFetcher renders pages in a headless Chromium so that client-side
// rendered articles expose their text.
type BrowserFetcher struct {
	bin      string
	settle   time.Duration
	headless bool
}

// NewBrowserFetcher creates a fetcher; an empty bin lets rod locate or
// download a browser.
func NewBrowserFetcher(bin string) *BrowserFetcher {
	return &BrowserFetcher{
		bin:      bin,
		settle:   time.Second,
		headless: true,
	}
}

// Fetch launches a browser, loads url and returns the rendered HTML
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	l := launcher.New().Headless(b.headless).Context(ctx)
	if b.bin != "" {
		l = l.Bin(b.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	// late XHR content
	if err := page.WaitIdle(b.settle); err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("wait idle: %w", ctx.Err())
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	return []byte(html), nil
}
