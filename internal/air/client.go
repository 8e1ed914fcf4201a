package air

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/pkg/config"
)

const encounterPath = "/immunisation/encounters"

// Sentinel errors surfaced by the client.
var (
	// ErrCredentialRejected means the register answered 401. The client
	// never retries with the same credential; refreshing it is the
	// caller's responsibility.
	ErrCredentialRejected = errors.New("registry rejected the supplied credential")

	// ErrUnavailable means every configured retry hit a transient failure.
	ErrUnavailable = errors.New("registry unavailable after retries")
)

// MetricsRecorder receives client-level instrumentation events.
type MetricsRecorder interface {
	ObserveRegistryRequest(outcome string)
	IncRegistryRetry()
}

// RequestHeaders carries the per-submission header values. The correlation
// id is stable for a logical submission; the message id is generated fresh
// for every HTTP request. SubjectDOB is the individual's date of birth in
// day-month-year digit order.
type RequestHeaders struct {
	CorrelationID string
	SubjectDOB    string
}

// Client owns the HTTP conversation with the register: header construction,
// bounded retry with exponential backoff, and response decoding. It holds no
// per-submission state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        config.RegistryConfig
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewClient constructs a register client.
func NewClient(cfg config.RegistryConfig, logger *zap.Logger, metrics MetricsRecorder) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// SubmitEncounter posts one request to the record-encounter endpoint and
// returns the decoded response together with the raw response bytes (stored
// verbatim by the caller). Transient failures (network errors and 5xx) are
// retried with exponential backoff up to the configured ceiling. A 401 fails
// fast with ErrCredentialRejected. Any other 4xx is the register speaking a
// business rejection: its body is decoded and returned like a 200 so the
// caller classifies it against the status code it carries.
func (c *Client) SubmitEncounter(ctx context.Context, req *EncounterRequest, hdr RequestHeaders) (*EncounterResponse, []byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal encounter request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.IncRegistryRetry()
			}
			if err := c.waitBackoff(ctx, attempt); err != nil {
				return nil, nil, err
			}
		}

		resp, raw, status, err := c.doRequest(ctx, body, hdr)
		if err == nil {
			outcome := "ok"
			if status >= 400 {
				outcome = "rejected"
				c.logger.Sugar().Warnw("registry rejected request",
					"http_status", status, "status_code", resp.StatusCode)
			}
			if c.metrics != nil {
				c.metrics.ObserveRegistryRequest(outcome)
			}
			return resp, raw, nil
		}
		if !isRetryable(err) {
			if c.metrics != nil {
				c.metrics.ObserveRegistryRequest("rejected")
			}
			return nil, nil, err
		}
		lastErr = err
		c.logger.Sugar().Warnw("registry call failed, will retry",
			"attempt", attempt+1, "max_retries", c.cfg.MaxRetries, "error", err)
	}

	if c.metrics != nil {
		c.metrics.ObserveRegistryRequest("unavailable")
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte, hdr RequestHeaders) (*EncounterResponse, []byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+encounterPath, bytes.NewReader(body))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("build registry request: %w", err)
	}
	c.setHeaders(httpReq, hdr)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, 0, &transientError{err: err}
	}
	defer httpResp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, 0, &transientError{err: fmt.Errorf("read registry response: %w", err)}
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, nil, httpResp.StatusCode, ErrCredentialRejected
	case httpResp.StatusCode >= 500:
		return nil, nil, httpResp.StatusCode, &transientError{err: fmt.Errorf("registry returned status %d", httpResp.StatusCode)}
	case httpResp.StatusCode >= 400:
		// Business rejection. The body carries the register's status code
		// and message; hand it back for classification. An undecodable
		// body still surfaces verbatim and classifies as an error.
		var resp EncounterResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			resp = EncounterResponse{Message: string(raw)}
		}
		return &resp, raw, httpResp.StatusCode, nil
	}

	var resp EncounterResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, httpResp.StatusCode, fmt.Errorf("decode registry response: %w", err)
	}
	return &resp, raw, httpResp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, hdr RequestHeaders) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	req.Header.Set("X-IBM-Client-Id", c.cfg.ClientID)
	req.Header.Set("dhs-messageId", uuid.NewString())
	req.Header.Set("dhs-correlationId", hdr.CorrelationID)
	req.Header.Set("dhs-auditId", c.cfg.AuditID)
	req.Header.Set("dhs-auditIdType", c.cfg.AuditIDType)
	req.Header.Set("dhs-subjectId", hdr.SubjectDOB)
	req.Header.Set("dhs-productId", c.cfg.ProductID)
}

// waitBackoff sleeps for the exponential backoff delay of the given attempt,
// honouring context cancellation. The delay doubles per attempt from the
// configured base.
func (c *Client) waitBackoff(ctx context.Context, attempt int) error {
	delay := c.cfg.RetryBaseDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transientError wraps failures eligible for retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
