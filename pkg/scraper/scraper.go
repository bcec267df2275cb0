// Package scraper downloads web pages and extracts their readable text.
package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Extractor is the content extractor used by the pipeline. It fetches over
// plain HTTP and, when a browser fetcher is configured, re-renders pages
// whose HTML holds no extractable text.
type Extractor struct {
	fetcher Fetcher
	browser Fetcher
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor creates an extractor. browser may be nil.
func NewExtractor(fetcher, browser Fetcher, timeout time.Duration, logger *zap.Logger) *Extractor {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		fetcher: fetcher,
		browser: browser,
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch downloads url within the extractor timeout
func (e *Extractor) Fetch(ctx context.Context, url string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	raw, err := e.fetcher.Fetch(fetchCtx, url)
	cancel()

	if err == nil {
		if _, ok := Extract(raw, true); ok || e.browser == nil {
			return raw, nil
		}
	} else if e.browser == nil {
		return nil, err
	}

	e.logger.Debug("falling back to browser rendering", zap.String("url", url), zap.Error(err))

	// rendering needs more time than a plain GET
	browserCtx, cancel := context.WithTimeout(ctx, 2*e.timeout)
	defer cancel()
	rendered, berr := e.browser.Fetch(browserCtx, url)
	if berr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w (browser: %v)", err, berr)
		}
		e.logger.Warn("browser rendering failed", zap.String("url", url), zap.Error(berr))
		return raw, nil
	}
	return rendered, nil
}

// Extract returns the readable text of raw; see the package-level Extract
func (e *Extractor) Extract(raw []byte, recall bool) (string, bool) {
	return Extract(raw, recall)
}

// Text fetches url and extracts it in standard mode, then recall mode
func (e *Extractor) Text(ctx context.Context, url string) (string, error) {
	raw, err := e.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if text, ok := e.Extract(raw, false); ok {
		return text, nil
	}
	if text, ok := e.Extract(raw, true); ok {
		return text, nil
	}
	return "", fmt.Errorf("no readable text at %s", url)
}
