package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const messageBufferSize = 256

// WebSocketConnection is the event channel of a ComfyClient. A single reader
// goroutine decodes text frames into WSStatusMessages and queues them for
// NextMessage; binary frames (sampler previews) are dropped.
// There is no reconnect once the connection drops.
type WebSocketConnection struct {
	WebSocketURL string
	Conn         *websocket.Conn
	MaxRetry     int

	// Exponential backoff configuration for the initial dial
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute
	Dialer    websocket.Dialer

	messages  chan *WSStatusMessage
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	readErr   error
}

// Connect dials the websocket, retrying with exponential backoff up to MaxRetry
// times, and starts the reader goroutine.
func (w *WebSocketConnection) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if w.BaseDelay > 0 {
		b.InitialInterval = w.BaseDelay
	}
	if w.MaxDelay > 0 {
		b.MaxInterval = w.MaxDelay
	}
	b.MaxElapsedTime = 0

	retries := w.MaxRetry
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	err := backoff.RetryNotify(func() error {
		conn, _, err := w.Dialer.DialContext(ctx, w.WebSocketURL, nil)
		if err != nil {
			return err
		}
		w.Conn = conn
		return nil
	}, policy, func(err error, delay time.Duration) {
		slog.Warn("Connection attempt failed", "url", w.WebSocketURL, "error", err, "retry_in", delay)
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", w.WebSocketURL, err)
	}

	w.messages = make(chan *WSStatusMessage, messageBufferSize)
	w.done = make(chan struct{})
	go w.handleMessages()
	return nil
}

// NextMessage returns the next decoded message, blocking until one arrives,
// the connection closes or ctx is done.
func (w *WebSocketConnection) NextMessage(ctx context.Context) (*WSStatusMessage, error) {
	if w.messages == nil {
		return nil, ErrNotConnected
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-w.messages:
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, w.err())
		}
		return msg, nil
	}
}

// Close sends a close frame and tears the connection down. It is safe to call more than once.
func (w *WebSocketConnection) Close() error {
	if w.Conn == nil {
		return nil
	}
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.Conn.Close()
	})
	return err
}

// Handle incoming WebSocket messages
func (w *WebSocketConnection) handleMessages() {
	defer close(w.messages)
	for {
		messageType, data, err := w.Conn.ReadMessage()
		if err != nil {
			w.setErr(err)
			select {
			case <-w.done:
			default:
				slog.Warn("Websocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			// previews are binary data
			continue
		}

		msg := &WSStatusMessage{}
		if err := json.Unmarshal(data, msg); err != nil {
			slog.Error("Deserializing Status Message", "error", err)
			continue
		}

		select {
		case w.messages <- msg:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readErr = err
}

func (w *WebSocketConnection) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readErr
}
