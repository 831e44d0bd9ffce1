package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both --proxy flag and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// kindForStatus maps an HTTP status code to a failure kind.
func kindForStatus(code int) retry.FailureKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return retry.Unauthorized
	case code == http.StatusTooManyRequests:
		return retry.RateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return retry.Timeout
	case code >= 500:
		return retry.Unavailable
	case code >= 400:
		return retry.InvalidRequest
	}
	return retry.Unknown
}

// statusFailure builds a Failure for a non-200 response.
func statusFailure(code int, body []byte, header http.Header) *retry.Failure {
	f := retry.Newf(kindForStatus(code), "API returned status %d: %s", code, truncate(string(body), 500))
	if f.Kind == retry.RateLimited {
		f.RetryAfter = parseRetryDelay(header, body)
	}
	return f
}

// transportFailure classifies an error from http.Client.Do.
func transportFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Cancellation is not a failure; hand it back untouched.
		return err
	}
	kind := retry.Classify(err)
	if kind == retry.Unknown {
		kind = retry.Network
	}
	return retry.New(kind, fmt.Errorf("API request failed: %w", err))
}

// ---------------------------------------------------------------------------
// Rate limit: parse 429 response for retry delay
// ---------------------------------------------------------------------------

// parseRetryDelay extracts the retry delay from a 429 response: the
// Retry-After header (seconds) first, then Google's RetryInfo detail.
// Returns 0 when the server gave no hint.
func parseRetryDelay(header http.Header, body []byte) time.Duration {
	if header != nil {
		if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return 0
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			// Parse duration like "30s", "45.123s"
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000) * time.Millisecond
			}
		}
	}
	return 0
}
