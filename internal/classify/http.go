package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kakei/kakeibot/internal/common"
)

// DefaultTimeout is the hard ceiling on one classifier call.
const DefaultTimeout = 3 * time.Second

// HTTPClient calls the classifier service over HTTP.
//
// Each call builds its own http.Client and request so no connection or
// session state is shared between jobs. A shared mutable session reused
// across concurrent requests caused cross-user data bleed in this
// system's lineage; per-call resources rule that class of bug out.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
}

// NewHTTPClient creates a classifier client for the given endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: classifier endpoint", common.ErrMissingConfig)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{endpoint: endpoint, timeout: timeout}, nil
}

type classifyRequest struct {
	Text  string   `json:"text"`
	Hints []string `json:"context_hints,omitempty"`
}

type classifyResponse struct {
	Intent     string  `json:"intent"`
	Amount     *int64  `json:"amount,omitempty"`
	Category   string  `json:"category,omitempty"`
	Note       string  `json:"note,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Classify sends one classification request with a hard timeout.
// Timeouts map to ErrClassifierTimeout, everything else transport-level
// to ErrClassifierUnavailable.
func (c *HTTPClient) Classify(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(classifyRequest{Text: req.Text, Hints: req.Hints})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode classify request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: c.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", common.ErrClassifierTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: %v", common.ErrClassifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", common.ErrClassifierUnavailable, resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("%w: malformed response: %v", common.ErrClassifierUnavailable, err)
	}

	result := Result{
		Intent:     Intent(decoded.Intent),
		Amount:     decoded.Amount,
		Category:   decoded.Category,
		Note:       decoded.Note,
		Confidence: decoded.Confidence,
	}
	if err := result.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: invalid response: %v", common.ErrClassifierUnavailable, err)
	}

	return result, nil
}
