package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// ErrRateLimited is returned (wrapped) when the node answers 429.
var ErrRateLimited = errors.New("rpc rate limited")

// RPCError is a JSON-RPC error object returned by the node. It is never retried.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RetryPolicy controls how transient failures are retried. Attempts counts
// retries after the first try; delays double up to Max.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy is used for idempotent reads.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Initial: time.Second, Max: 10 * time.Second}

func (p RetryPolicy) next(d time.Duration) time.Duration {
	return min(d*2, p.Max)
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	retry      RetryPolicy
	commitment string
	observe    func(method string, d time.Duration)
	seq        atomic.Uint64
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithRetryPolicy replaces the retry policy for reads.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *HTTPClient) { c.retry = p }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithCommitment sets the commitment used for reads and preflight.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) { c.commitment = commitment }
}

// WithLatencyObserver registers a callback invoked after every HTTP round trip.
func WithLatencyObserver(fn func(method string, d time.Duration)) ClientOption {
	return func(c *HTTPClient) { c.observe = fn }
}

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy,
		commitment: CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transientError marks failures worth another attempt: transport errors,
// 429 and 5xx replies, unreadable bodies.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// invoke calls method, retrying transient failures under policy.
func (c *HTTPClient) invoke(ctx context.Context, method string, params []any, policy RetryPolicy) (gjson.Result, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.seq.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal %s: %w", method, err)
	}

	delay := policy.Initial
	for attempt := 0; ; attempt++ {
		result, err := c.roundTrip(ctx, method, payload)
		var te transientError
		if err == nil || !errors.As(err, &te) {
			return result, err
		}
		if attempt >= policy.Attempts {
			if policy.Attempts == 0 {
				return gjson.Result{}, te.err
			}
			return gjson.Result{}, fmt.Errorf("%s failed after %d attempts: %w", method, attempt+1, te.err)
		}

		select {
		case <-ctx.Done():
			return gjson.Result{}, ctx.Err()
		case <-time.After(delay):
		}
		delay = policy.next(delay)
	}
}

// roundTrip performs exactly one HTTP exchange and returns the "result" member.
func (c *HTTPClient) roundTrip(ctx context.Context, method string, payload []byte) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		c.observe(method, time.Since(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		return gjson.Result{}, transientError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return gjson.Result{}, transientError{fmt.Errorf("read response: %w", err)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, transientError{ErrRateLimited}
	case resp.StatusCode != http.StatusOK:
		return gjson.Result{}, transientError{fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))}
	case !gjson.ValidBytes(body):
		return gjson.Result{}, transientError{fmt.Errorf("malformed %s response", method)}
	}

	reply := gjson.ParseBytes(body)
	if e := reply.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, &RPCError{Code: e.Get("code").Int(), Message: e.Get("message").String()}
	}
	return reply.Get("result"), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// GetBalance returns the balance of an address in lamports.
func (c *HTTPClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.invoke(ctx, "getBalance", []any{address, map[string]any{"commitment": c.commitment}}, c.retry)
	if err != nil {
		return 0, err
	}
	value := result.Get("value")
	if value.Type != gjson.Number {
		return 0, fmt.Errorf("getBalance: missing value")
	}
	return value.Uint(), nil
}

// SendTransaction broadcasts a signed, base64-encoded transaction exactly once.
// The node is asked not to rebroadcast on its own (maxRetries=0) so the caller
// stays the single owner of any re-submission decision.
func (c *HTTPClient) SendTransaction(ctx context.Context, signedTx string) (string, error) {
	params := []any{signedTx, map[string]any{
		"encoding":            "base64",
		"skipPreflight":       false,
		"preflightCommitment": c.commitment,
		"maxRetries":          0,
	}}
	result, err := c.invoke(ctx, "sendTransaction", params, RetryPolicy{})
	if err != nil {
		return "", err
	}
	if result.String() == "" {
		return "", errors.New("sendTransaction returned empty signature")
	}
	return result.String(), nil
}

// GetSignatureStatuses returns statuses for the given signatures, in order.
// searchHistory asks the node to look beyond its recent status cache.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*SignatureStatus, error) {
	params := []any{signatures, map[string]any{"searchTransactionHistory": searchHistory}}
	result, err := c.invoke(ctx, "getSignatureStatuses", params, c.retry)
	if err != nil {
		return nil, err
	}

	values := result.Get("value").Array()
	statuses := make([]*SignatureStatus, len(signatures))
	for i := range statuses {
		if i >= len(values) || values[i].Type == gjson.Null {
			continue
		}
		v := values[i]
		st := &SignatureStatus{
			Slot:               v.Get("slot").Int(),
			ConfirmationStatus: v.Get("confirmationStatus").String(),
		}
		if conf := v.Get("confirmations"); conf.Type == gjson.Number {
			n := conf.Int()
			st.Confirmations = &n
		}
		if e := v.Get("err"); e.Exists() && e.Type != gjson.Null {
			st.Err = e.Value()
		}
		statuses[i] = st
	}
	return statuses, nil
}
