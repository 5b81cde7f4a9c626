package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Probe checks that url answers. It sends HEAD and falls back to GET when the
// server rejects HEAD. Any status below 400 counts as available; failures wrap
// ErrSourceUnavailable. The response body is never read beyond a discard.
func Probe(ctx context.Context, client *http.Client, url, userAgent string) error {
	status, err := probeOnce(ctx, client, http.MethodHead, url, userAgent)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = probeOnce(ctx, client, http.MethodGet, url, userAgent)
	}
	if err != nil {
		return Unavailable(err)
	}
	if status >= http.StatusBadRequest {
		return Unavailable(fmt.Errorf("health check returned status %d", status))
	}
	return nil
}

func probeOnce(ctx context.Context, client *http.Client, method, url, userAgent string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", url, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
