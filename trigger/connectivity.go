package trigger

import (
	"context"
	"net/http"
	"time"

	"DhammaFM/logger"
)

// Connectivity answers whether the network is usable right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// HTTPConnectivity probes a well-known URL with a HEAD request. Any 2xx or
// 3xx response counts as online; errors and server failures count as offline.
type HTTPConnectivity struct {
	client   *http.Client
	probeURL string
}

func NewHTTPConnectivity(probeURL string) *HTTPConnectivity {
	return &HTTPConnectivity{
		client:   &http.Client{Timeout: 10 * time.Second},
		probeURL: probeURL,
	}
}

func (c *HTTPConnectivity) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("connectivity probe failed", logger.ErrorField(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
