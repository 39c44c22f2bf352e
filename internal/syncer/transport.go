// internal/syncer/transport.go
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTransport marks remote push failures. It never crosses the
// coordinator's public boundary; failed cycles are reported in the
// Result instead.
var ErrTransport = errors.New("syncer: transport failure")

// Transport delivers one serialized snapshot to the remote store. The
// wire protocol beyond "push bytes, succeed or fail" is the remote
// collaborator's concern.
type Transport interface {
	Push(ctx context.Context, snapshotID string, payload []byte) error
}

// HTTPTransport POSTs snapshots to a fixed endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport for the given endpoint.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Push sends the payload; any non-2xx status is a transport failure.
func (t *HTTPTransport) Push(ctx context.Context, snapshotID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Pulse-Snapshot-ID", snapshotID)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	return nil
}
