package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/semmidev/mongosnap/internal/domain"
)

const userAgent = "mongosnap/1.0"

// Heartbeat pings a dead man's switch URL after a successful run.
type Heartbeat struct {
	url    string
	client *http.Client
}

var _ domain.Notifier = (*Heartbeat)(nil)

func NewHeartbeat(url string, timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends a single GET. Failed runs are not reported so the monitor
// alerts on the missing ping.
func (h *Heartbeat) Notify(ctx context.Context, report domain.RunReport) error {
	if !report.Success {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request to %s failed: %w", h.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat to %s returned %s", h.url, resp.Status)
	}
	return nil
}
