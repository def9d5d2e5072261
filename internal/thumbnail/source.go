package thumbnail

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SourceChecker verifies a remote video before ffmpeg is spawned for it.
type SourceChecker interface {
	Check(ctx context.Context, url string) error
}

// HTTPSourceChecker issues a HEAD request. Only transport errors and
// 404/410 count as unreachable; servers that refuse HEAD get the benefit of the doubt.
type HTTPSourceChecker struct {
	Client *http.Client
}

// NewHTTPSourceChecker returns a checker bounded by timeout.
func NewHTTPSourceChecker(timeout time.Duration) *HTTPSourceChecker {
	return &HTTPSourceChecker{Client: &http.Client{Timeout: timeout}}
}

func (c *HTTPSourceChecker) Check(ctx context.Context, url string) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("HEAD %s: %s", url, resp.Status)
	}
	return nil
}
