// Package scanner fetches point-in-time yield opportunities from protocol endpoints.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"solana-yield-agent/internal/domain"
)

// Scanner fetches opportunities from one protocol.
// Implementations never panic on bad input: any fetch or parse failure yields an
// empty list, a logged warning and a non-nil error describing the failure.
type Scanner interface {
	Name() string
	Scan(ctx context.Context) ([]domain.YieldOpportunity, error)
}

// ErrMalformedPayload is returned when a response body cannot be mapped.
var ErrMalformedPayload = errors.New("malformed payload")

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 32 << 20
)

// Option configures an HTTP-backed scanner.
type Option func(*base)

// WithURL overrides the endpoint URL.
func WithURL(u string) Option {
	return func(b *base) {
		if u != "" {
			b.url = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *log.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// base holds the plumbing shared by every HTTP scanner.
type base struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *log.Logger
}

func newBase(name, defaultURL string, opts []Option) base {
	b := base{
		name:       name,
		url:        defaultURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.New(log.Writer(), "[scanner] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Name returns the protocol name.
func (b *base) Name() string {
	return b.name
}

// fetch GETs the endpoint and returns the parsed JSON document.
func (b *base) fetch(ctx context.Context) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return gjson.Result{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	return gjson.ParseBytes(body), nil
}

// fail logs the warning and returns the empty result every scanner reports on failure.
func (b *base) fail(err error) ([]domain.YieldOpportunity, error) {
	b.logger.Printf("WARN: %s scan failed: %v", b.name, err)
	return []domain.YieldOpportunity{}, fmt.Errorf("%s: %w", b.name, err)
}

// firstNumber returns the first path that holds a number (or a numeric string).
func firstNumber(r gjson.Result, paths ...string) (float64, bool) {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.Number:
			return v.Float(), true
		case gjson.String:
			if f := gjson.Parse(v.Str); f.Type == gjson.Number {
				return f.Float(), true
			}
		}
	}
	return 0, false
}

// firstString returns the first non-empty string among paths.
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := r.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}
