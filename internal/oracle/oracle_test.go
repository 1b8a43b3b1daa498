package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solana-yield-agent/internal/domain"
)

var quiet = log.New(io.Discard, "", 0)

type captureLogger struct {
	mu      sync.Mutex
	types   []string
	details []map[string]any
}

func (c *captureLogger) Log(_, actionType string, details map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, actionType)
	c.details = append(c.details, details)
}

func chatServer(t *testing.T, status int, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOracle(url string, logs *captureLogger) *Oracle {
	return New(Options{
		Client: NewOpenAIClient(ClientConfig{BaseURL: url + "/v1", APIKey: "test-key", Model: "test-model"}),
		Model:  "test-model",
		Audit:  logs,
		Logger: quiet,
	})
}

var sampleOpps = []domain.YieldOpportunity{
	{Protocol: "Kamino", Name: "SOL-USDC", Type: domain.TypeLiquidity, APY: 12.5, TVL: 25e6, Risk: domain.RiskMedium},
	{Protocol: "Marinade", Name: "mSOL", Type: domain.TypeStaking, APY: 8.2, TVL: 5e9, Risk: domain.RiskLow},
}

var sampleWallet = domain.WalletState{Address: "wallet", BalanceSOL: 0.5}

func TestConsult_ValidReply(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, `{"advice":"stake","pathway":"SOL -> mSOL","action":"STAKE"}`, &calls)
	logs := &captureLogger{}

	d := newTestOracle(srv.URL, logs).Consult(context.Background(), sampleOpps, sampleWallet)
	if d.Action != domain.ActionStake || d.Pathway != "SOL -> mSOL" {
		t.Errorf("unexpected decision %+v", d)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request, got %d", calls.Load())
	}
	if len(logs.types) != 2 || logs.types[0] != domain.ActionTypeBrainThinking || logs.types[1] != domain.ActionTypeStrategyDecision {
		t.Errorf("unexpected audit sequence %v", logs.types)
	}
	if logs.details[1]["valid"] != true {
		t.Errorf("expected valid=true, got %v", logs.details[1])
	}
}

func TestConsult_InvalidReplyHolds(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, `{"advice":"ape in","pathway":"all in","action":"LEVERAGE"}`, &calls)
	logs := &captureLogger{}

	d := newTestOracle(srv.URL, logs).Consult(context.Background(), sampleOpps, sampleWallet)
	if d != domain.HoldDecision() {
		t.Errorf("expected HOLD default, got %+v", d)
	}
	if logs.details[1]["reason"] == nil {
		t.Error("expected rejection reason in audit entry")
	}
}

func TestConsult_ProviderErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusServiceUnavailable, "", &calls)

	d := newTestOracle(srv.URL, &captureLogger{}).Consult(context.Background(), sampleOpps, sampleWallet)
	if d.Action != domain.ActionHold || d.Advice != domain.AdviceProviderUnavailable {
		t.Errorf("expected HOLD default, got %+v", d)
	}
	if calls.Load() != 1 {
		t.Errorf("oracle must not retry, got %d requests", calls.Load())
	}
}

type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestConsult_Timeout(t *testing.T) {
	o := New(Options{Client: blockingClient{}, Logger: quiet, Timeout: 20 * time.Millisecond})

	start := time.Now()
	d := o.Consult(context.Background(), sampleOpps, sampleWallet)
	if time.Since(start) > time.Second {
		t.Error("consult did not honour its timeout")
	}
	if d.Action != domain.ActionHold {
		t.Errorf("expected HOLD, got %s", d.Action)
	}
}

type errClient struct{ calls int }

func (e *errClient) Complete(context.Context, string, string) (string, error) {
	e.calls++
	return "", errors.New("boom")
}

func TestConsult_Offline(t *testing.T) {
	logs := &captureLogger{}
	o := New(Options{Audit: logs, Logger: quiet})

	if !o.Offline() {
		t.Fatal("expected offline oracle")
	}
	d := o.Consult(context.Background(), sampleOpps, sampleWallet)
	if d.Action != domain.ActionHold || d.Advice != AdviceOffline {
		t.Errorf("unexpected offline decision %+v", d)
	}
	if len(logs.types) != 1 || logs.details[0]["offline"] != true {
		t.Errorf("expected a single offline STRATEGY_DECISION, got %v", logs.types)
	}
}

func TestConsult_SingleCallPerConsult(t *testing.T) {
	c := &errClient{}
	o := New(Options{Client: c, Logger: quiet})
	o.Consult(context.Background(), sampleOpps, sampleWallet)
	o.Consult(context.Background(), sampleOpps, sampleWallet)
	if c.calls != 2 {
		t.Errorf("expected one call per consult, got %d", c.calls)
	}
}

func TestRenderPrompt_BoundsOpportunities(t *testing.T) {
	opps := make([]domain.YieldOpportunity, 10)
	for i := range opps {
		opps[i] = domain.YieldOpportunity{Protocol: "P", Name: strings.Repeat("x", 200), APY: float64(i)}
	}

	prompt, err := renderPrompt(opps, sampleWallet, 1.0, 3)
	if err != nil {
		t.Fatalf("renderPrompt: %v", err)
	}
	if got := strings.Count(prompt, `"protocol"`); got != 3 {
		t.Errorf("expected 3 opportunities in prompt, got %d", got)
	}
	if strings.Contains(prompt, strings.Repeat("x", maxNameLen+1)) {
		t.Error("names must be truncated")
	}
	if !strings.Contains(prompt, `"balance_sol":0.5`) {
		t.Error("wallet state missing from prompt")
	}
}
