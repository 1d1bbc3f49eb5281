package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// newHTTPRequest builds the request for the HTTP node kinds. The URL must
// be absolute; bodies are sent as JSON.
func newHTTPRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("url must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q must be absolute", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
