package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// WSClient is the confirmation fast path: one-shot signature subscriptions
// over the RPC node's WebSocket endpoint.
type WSClient interface {
	// SubscribeSignature waits for a single signature to reach the given commitment.
	// The returned channel yields at most one notification and is then closed.
	// It is closed without a value when the connection drops first.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	Close() error
}

// SignatureNotification is delivered when a subscribed signature is processed.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       any // transaction error as reported by the node, nil on success
}

// ErrWatcherClosed is returned by a closed SignatureWatcher.
var ErrWatcherClosed = errors.New("signature watcher closed")

// WSOption configures a SignatureWatcher.
type WSOption func(*SignatureWatcher)

// WithSubscribeTimeout bounds the wait for a subscription id.
func WithSubscribeTimeout(d time.Duration) WSOption {
	return func(w *SignatureWatcher) { w.subscribeTimeout = d }
}

// WithReconnectBackoff sets the first and the maximum delay between reconnect attempts.
func WithReconnectBackoff(initial, max time.Duration) WSOption {
	return func(w *SignatureWatcher) {
		w.backoff = initial
		w.maxBackoff = max
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(d time.Duration) WSOption {
	return func(w *SignatureWatcher) { w.pingEvery = d }
}

// WithWSLogger sets the operational logger.
func WithWSLogger(l *log.Logger) WSOption {
	return func(w *SignatureWatcher) { w.logger = l }
}

// SignatureWatcher implements WSClient on a single gorilla/websocket
// connection. It reconnects with exponential backoff; subscriptions do not
// survive a reconnect and their channels are closed so callers fall back to
// polling.
type SignatureWatcher struct {
	endpoint         string
	logger           *log.Logger
	subscribeTimeout time.Duration
	backoff          time.Duration
	maxBackoff       time.Duration
	pingEvery        time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration

	mu      sync.Mutex // guards everything below and serialises writes
	conn    *websocket.Conn
	closed  bool
	gen     uint64 // bumped on every lost connection
	nextID  uint64
	pending map[uint64]chan int64 // request id -> subscription id
	waiters map[int64]waiter      // subscription id -> subscriber

	done chan struct{}
	wg   sync.WaitGroup
}

type waiter struct {
	signature string
	ch        chan SignatureNotification
}

var _ WSClient = (*SignatureWatcher)(nil)

// DialSignatureWatcher connects to endpoint and starts the read and ping loops.
func DialSignatureWatcher(ctx context.Context, endpoint string, opts ...WSOption) (*SignatureWatcher, error) {
	w := &SignatureWatcher{
		endpoint:         endpoint,
		logger:           log.New(log.Writer(), "[ws] ", log.LstdFlags),
		subscribeTimeout: 15 * time.Second,
		backoff:          time.Second,
		maxBackoff:       30 * time.Second,
		pingEvery:        30 * time.Second,
		readTimeout:      90 * time.Second,
		writeTimeout:     10 * time.Second,
		pending:          make(map[uint64]chan int64),
		waiters:          make(map[int64]waiter),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	conn, err := w.dial(ctx)
	if err != nil {
		return nil, err
	}
	w.conn = conn

	w.wg.Add(2)
	go w.readLoop(conn)
	go w.pingLoop()
	return w, nil
}

func (w *SignatureWatcher) dial(ctx context.Context) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// SubscribeSignature sends signatureSubscribe and waits for the subscription id.
func (w *SignatureWatcher) SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error) {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWatcherClosed
	}
	if w.conn == nil {
		w.mu.Unlock()
		return nil, errors.New("websocket reconnecting")
	}
	w.nextID++
	id := w.nextID
	gen := w.gen
	ack := make(chan int64, 1)
	w.pending[id] = ack

	frame, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "signatureSubscribe",
		"params":  []any{signature, map[string]string{"commitment": commitment}},
	})
	w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	err := w.conn.WriteMessage(websocket.TextMessage, frame)
	if err != nil {
		delete(w.pending, id)
	}
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(w.subscribeTimeout)
	defer timer.Stop()

	var subID int64
	select {
	case got, ok := <-ack:
		if !ok {
			return nil, ErrWatcherClosed
		}
		subID = got
	case <-timer.C:
		w.forget(id)
		return nil, fmt.Errorf("subscription timeout after %s", w.subscribeTimeout)
	case <-ctx.Done():
		w.forget(id)
		return nil, ctx.Err()
	}

	ch := make(chan SignatureNotification, 1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.gen != gen {
		close(ch)
		return ch, nil
	}
	w.waiters[subID] = waiter{signature: signature, ch: ch}
	return ch, nil
}

func (w *SignatureWatcher) forget(reqID uint64) {
	w.mu.Lock()
	delete(w.pending, reqID)
	w.mu.Unlock()
}

// Close stops the loops and closes every outstanding subscription. It is idempotent.
func (w *SignatureWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		w.conn.Close()
	}
	w.releaseLocked()
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

// releaseLocked closes all waiter and pending channels. Caller holds mu.
func (w *SignatureWatcher) releaseLocked() {
	for id, wt := range w.waiters {
		close(wt.ch)
		delete(w.waiters, id)
	}
	for id, ack := range w.pending {
		close(ack)
		delete(w.pending, id)
	}
}

// readLoop owns reconnection: on a read error it drops every subscription and
// dials again with exponential backoff until it succeeds or the watcher closes.
func (w *SignatureWatcher) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()

	for {
		conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			w.dispatch(msg)
			continue
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		conn.Close()
		w.conn = nil
		w.gen++
		w.releaseLocked()
		w.mu.Unlock()
		w.logger.Printf("WARN: connection lost: %v", err)

		if conn = w.redial(); conn == nil {
			return
		}
	}
}

func (w *SignatureWatcher) redial() *websocket.Conn {
	delay := w.backoff
	for {
		select {
		case <-w.done:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conn, err := w.dial(ctx)
		cancel()
		if err == nil {
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				conn.Close()
				return nil
			}
			w.conn = conn
			w.mu.Unlock()
			w.logger.Printf("reconnected to %s", w.endpoint)
			return conn
		}

		w.logger.Printf("WARN: reconnect failed: %v", err)
		delay = min(delay*2, w.maxBackoff)
	}
}

// dispatch routes one inbound frame: a subscribe acknowledgement, a
// signature notification or an error reply.
func (w *SignatureWatcher) dispatch(msg []byte) {
	if !gjson.ValidBytes(msg) {
		return
	}
	frame := gjson.ParseBytes(msg)

	switch {
	case frame.Get("method").String() == "signatureNotification":
		params := frame.Get("params")
		w.notify(params.Get("subscription").Int(), params.Get("result"))

	case frame.Get("error").Exists():
		w.logger.Printf("WARN: rpc error id=%d code=%d: %s",
			frame.Get("id").Uint(), frame.Get("error.code").Int(), frame.Get("error.message").String())
		w.forget(frame.Get("id").Uint())

	case frame.Get("id").Exists() && frame.Get("result").Type == gjson.Number:
		reqID := frame.Get("id").Uint()
		w.mu.Lock()
		ack, ok := w.pending[reqID]
		delete(w.pending, reqID)
		w.mu.Unlock()
		if ok {
			ack <- frame.Get("result").Int()
		}
	}
}

// notify delivers the notification and retires the subscription; the node
// unsubscribes on its own after the first notification.
func (w *SignatureWatcher) notify(subID int64, result gjson.Result) {
	w.mu.Lock()
	wt, ok := w.waiters[subID]
	delete(w.waiters, subID)
	w.mu.Unlock()
	if !ok {
		return
	}

	n := SignatureNotification{
		Signature: wt.signature,
		Slot:      result.Get("context.slot").Int(),
	}
	if e := result.Get("value.err"); e.Exists() && e.Type != gjson.Null {
		n.Err = e.Value()
	}
	wt.ch <- n
	close(wt.ch)
}

func (w *SignatureWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.conn != nil {
				_ = w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
			}
			w.mu.Unlock()
		}
	}
}
