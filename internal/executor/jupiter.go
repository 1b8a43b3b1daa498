package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultQuoteURL is Jupiter's quote endpoint.
	DefaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	// DefaultSwapURL is Jupiter's swap transaction build endpoint.
	DefaultSwapURL = "https://quote-api.jup.ag/v6/swap"
)

var (
	// ErrQuoteUnavailable is returned when no usable quote comes back.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrBuildFailed is returned when the swap endpoint returns no transaction.
	ErrBuildFailed = errors.New("swap transaction unavailable")
)

// QuoteRequest asks for a price quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // smallest unit of InputMint
	SlippageBps int
}

// Quote is an opaque quote passed through to the build step.
type Quote struct {
	Raw       json.RawMessage
	InAmount  string
	OutAmount string
}

// SwapAPI is the quote and transaction-build endpoint pair.
type SwapAPI interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	// SwapTransaction returns an unsigned base64 transaction built against quote.
	SwapTransaction(ctx context.Context, quote *Quote, signer string) (string, error)
}

// JupiterClient implements SwapAPI against the Jupiter aggregator.
type JupiterClient struct {
	quoteURL   string
	swapURL    string
	httpClient *http.Client
}

// NewJupiterClient creates a Jupiter client. Empty URLs select the defaults.
func NewJupiterClient(quoteURL, swapURL string, timeout time.Duration) *JupiterClient {
	if quoteURL == "" {
		quoteURL = DefaultQuoteURL
	}
	if swapURL == "" {
		swapURL = DefaultSwapURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &JupiterClient{
		quoteURL:   quoteURL,
		swapURL:    swapURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Quote fetches a quote. A reply without outAmount is ErrQuoteUnavailable.
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	body, err := c.do(ctx, http.MethodGet, c.quoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrQuoteUnavailable)
	}
	out := gjson.GetBytes(body, "outAmount").String()
	if out == "" || out == "0" {
		return nil, fmt.Errorf("%w: no outAmount", ErrQuoteUnavailable)
	}
	return &Quote{
		Raw:       json.RawMessage(body),
		InAmount:  gjson.GetBytes(body, "inAmount").String(),
		OutAmount: out,
	}, nil
}

// SwapTransaction asks Jupiter to build the swap for signer.
func (c *JupiterClient) SwapTransaction(ctx context.Context, quote *Quote, signer string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"quoteResponse":           quote.Raw,
		"userPublicKey":           signer,
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.swapURL, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	tx := gjson.GetBytes(body, "swapTransaction").String()
	if tx == "" {
		return "", fmt.Errorf("%w: no swapTransaction", ErrBuildFailed)
	}
	return tx, nil
}

func (c *JupiterClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}
