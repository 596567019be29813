package fetch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// NewRetryClient builds the shared retrying HTTP client used by the
// discoverers, the fetcher and the comment fetchers. The default policy
// retries 429 and 5xx (and transient network errors) with exponential
// backoff, honoring Retry-After. Callers only issue GET and HEAD.
func NewRetryClient(timeout time.Duration, maxAttempts int, logger *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: timeout}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	c.RetryMax = maxAttempts - 1
	c.RetryWaitMin = 1 * time.Second
	c.RetryWaitMax = 60 * time.Second
	// *slog.Logger satisfies retryablehttp.LeveledLogger.
	c.Logger = logger.With("component", "http")
	return c
}

// NewRetryClientWithJar is NewRetryClient with a cookie jar, for the
// comment fetchers whose login cookies must stay scoped to one call.
func NewRetryClientWithJar(timeout time.Duration, maxAttempts int, jar http.CookieJar, logger *slog.Logger) *retryablehttp.Client {
	c := NewRetryClient(timeout, maxAttempts, logger)
	c.HTTPClient.Jar = jar
	return c
}
