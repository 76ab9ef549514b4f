// Package os2forms downloads form attachments from the OS2Forms API.
package os2forms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultClientTimeout = 120 * time.Second

// DownloadError reports a non-success response from the attachment source.
type DownloadError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("os2forms: download of %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client downloads attachment bytes by URL using an API key credential.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an OS2Forms download client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

// DownloadFile fetches the raw bytes behind an attachment URL.
func (c *Client) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("os2forms: failed to build download request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("os2forms: download request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("os2forms: failed to read download response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
