package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// maxBodyExcerpt caps how much of a worker response body is carried into
// error text.
const maxBodyExcerpt = 4000

// HTTPInvoker invokes the compute worker over HTTP: a JSON POST to the run
// endpoint, blocking until the worker replies.
type HTTPInvoker struct {
	endpoint string
	client   *http.Client
}

var _ Invoker = (*HTTPInvoker)(nil)

// NewHTTPInvoker creates an invoker for the given run endpoint. The request
// deadline comes from the caller's context, not the client.
func NewHTTPInvoker(endpoint string) *HTTPInvoker {
	return &HTTPInvoker{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// Invoke posts the request and interprets the JSON reply. A non-2xx status
// or a body status other than "success" is a dispatch failure.
func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal worker request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug().Str("job_id", req.JobID).Str("endpoint", h.endpoint).Msg("Invoking worker over HTTP")

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("worker call to %s timed out: %w", h.endpoint, ErrTimeout)
		}
		return nil, fmt.Errorf("worker call to %s: %w", h.endpoint, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyExcerpt))
	if err != nil {
		return nil, fmt.Errorf("read worker response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("worker returned %s: %s: %w", httpResp.Status, string(body), ErrWorkerFailed)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode worker response %q: %w", string(body), err)
	}

	if resp.Status != StatusSuccess {
		return nil, fmt.Errorf("worker returned status %q: %s: %w", resp.Status, string(body), ErrWorkerFailed)
	}

	return &resp, nil
}
