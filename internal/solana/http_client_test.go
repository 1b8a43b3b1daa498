package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type rpcCall struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func rpcServer(t *testing.T, handle func(call rpcCall) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": call.ID, "result": handle(call)})
	}))
}

var fastRetry = WithRetryPolicy(RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond})

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, func(call rpcCall) any {
		if call.Method != "getBalance" || call.Params[0] != "wallet1" {
			t.Errorf("unexpected call %+v", call)
		}
		if opts, _ := call.Params[1].(map[string]any); opts["commitment"] != CommitmentConfirmed {
			t.Errorf("expected confirmed commitment, got %v", call.Params[1])
		}
		return map[string]any{"context": map[string]any{"slot": 1}, "value": uint64(1_500_000_000)}
	})
	defer server.Close()

	lamports, err := NewHTTPClient(server.URL).GetBalance(context.Background(), "wallet1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if lamports != 1_500_000_000 {
		t.Errorf("expected 1500000000 lamports, got %d", lamports)
	}
}

func TestHTTPClient_GetBalance_MissingValue(t *testing.T) {
	server := rpcServer(t, func(rpcCall) any { return map[string]any{"context": map[string]any{}} })
	defer server.Close()

	if _, err := NewHTTPClient(server.URL).GetBalance(context.Background(), "w"); err == nil {
		t.Fatal("expected error for a reply without value")
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(call rpcCall) any {
		if call.Method != "getSignatureStatuses" {
			t.Errorf("expected getSignatureStatuses, got %s", call.Method)
		}
		if opts := call.Params[1].(map[string]any); opts["searchTransactionHistory"] != true {
			t.Errorf("expected searchTransactionHistory=true, got %v", opts)
		}
		return map[string]any{"value": []any{
			map[string]any{"slot": 77, "confirmations": nil, "err": nil, "confirmationStatus": "finalized"},
			nil,
			map[string]any{"slot": 80, "confirmations": 2, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"},
		}}
	})
	defer server.Close()

	statuses, err := NewHTTPClient(server.URL).GetSignatureStatuses(context.Background(), []string{"a", "b", "c"}, true)
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Confirmed() || statuses[0].Slot != 77 || statuses[0].Confirmations != nil || statuses[0].Failed() {
		t.Errorf("unexpected first status %+v", statuses[0])
	}
	if statuses[1] != nil || statuses[1].Confirmed() {
		t.Errorf("expected nil status for unknown signature, got %+v", statuses[1])
	}
	if !statuses[2].Failed() || statuses[2].Confirmations == nil || *statuses[2].Confirmations != 2 {
		t.Errorf("unexpected third status %+v", statuses[2])
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	server := rpcServer(t, func(call rpcCall) any {
		opts := call.Params[1].(map[string]any)
		if call.Method != "sendTransaction" || opts["encoding"] != "base64" || opts["maxRetries"] != float64(0) {
			t.Errorf("unexpected call %+v", call)
		}
		return "5sig"
	})
	defer server.Close()

	sig, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), "AQID")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("expected 5sig, got %s", sig)
	}
}

func TestHTTPClient_SendTransaction_NoRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewHTTPClient(server.URL, fastRetry).SendTransaction(context.Background(), "AQID"); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("sendTransaction must be attempted once, got %d", got)
	}
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		json.NewDecoder(r.Body).Decode(&call)
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Write([]byte(`{"jsonrpc":`))
		default:
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": call.ID, "result": map[string]any{"value": 42}})
		}
	}))
	defer server.Close()

	var observed atomic.Int32
	client := NewHTTPClient(server.URL, fastRetry,
		WithLatencyObserver(func(string, time.Duration) { observed.Add(1) }))

	lamports, err := client.GetBalance(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("GetBalance after retries: %v", err)
	}
	if lamports != 42 || attempts.Load() != 3 || observed.Load() != 3 {
		t.Errorf("lamports=%d attempts=%d observed=%d", lamports, attempts.Load(), observed.Load())
	}
}

func TestHTTPClient_GivesUp(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, fastRetry).GetBalance(context.Background(), "wallet")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 1 try + 3 retries, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var call rpcCall
		json.NewDecoder(r.Body).Decode(&call)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      call.ID,
			"error":   map[string]any{"code": -32602, "message": "Invalid param"},
		})
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, fastRetry).GetBalance(context.Background(), "bad")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T (%v)", err, err)
	}
	if rpcErr.Code != -32602 || rpcErr.Message != "Invalid param" {
		t.Errorf("unexpected error %+v", rpcErr)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors are not retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL).GetBalance(ctx, "wallet")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
