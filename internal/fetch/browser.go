package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Browser renders script-built pages through a shared headless Chromium.
// It exists for the forum sites whose listings and threads are assembled
// client-side; everything else goes through the plain HTTP path.
type Browser struct {
	browser   *rod.Browser
	userAgent string
	logger    *slog.Logger
}

// NewBrowser launches a headless browser instance.
func NewBrowser(userAgent string, logger *slog.Logger) (*Browser, error) {
	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{
		browser:   browser,
		userAgent: userAgent,
		logger:    logger.With("component", "browser"),
	}, nil
}

// FetchHTML navigates to a URL and returns the rendered document HTML.
func (b *Browser) FetchHTML(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return "", fmt.Errorf("stealth page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
		b.logger.Warn("failed to set user agent", "error", err)
	}

	if err := page.Timeout(timeout).Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		b.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}

	b.logger.Debug("browser fetch complete", "url", rawURL, "size", len(html))
	return html, nil
}

// Close shuts down the browser.
func (b *Browser) Close() error {
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}
