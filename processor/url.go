package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const (
	defaultFetchTimeout = 25 * time.Second
	maxFetchBytes       = 10 << 20
)

// URLProcessor fetches a web page and converts its HTML to markdown, which
// chunks and embeds better than raw markup.
type URLProcessor struct {
	client *http.Client
}

// NewURLProcessor builds a fetcher. A non-positive timeout uses the default.
func NewURLProcessor(timeout time.Duration) *URLProcessor {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &URLProcessor{client: &http.Client{Timeout: timeout}}
}

// NewURLProcessorWithClient wires an explicit HTTP client, used by tests.
func NewURLProcessorWithClient(client *http.Client) *URLProcessor {
	return &URLProcessor{client: client}
}

// NormalizeURL fills in a missing scheme. Bare hosts and www-prefixed hosts
// get https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// Fetch downloads a page and returns its content as markdown.
func (u *URLProcessor) Fetch(ctx context.Context, rawURL string) (string, error) {
	target := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &ExtractionError{Reason: fmt.Sprintf("invalid URL %q", rawURL), Err: err}
	}
	req.Header.Set("User-Agent", "notebase/1.0")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch of %s returned status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", target, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		// Non-HTML responses go through the text pipeline.
		return (&TXTProcessor{}).Extract(ctx, body)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(body))
	if err != nil {
		return "", &ExtractionError{Reason: "HTML conversion failed", Err: err}
	}
	if strings.TrimSpace(markdown) == "" {
		return "", &ExtractionError{Reason: "no extractable text at URL"}
	}
	return markdown, nil
}
