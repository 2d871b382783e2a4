package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ComfyClientCallbacks struct {
	ClientQueueCountChanged func(*ComfyClient, int)
	QueuedItemStarted       func(*ComfyClient, *QueueItem)
	QueuedItemStopped       func(*ComfyClient, *QueueItem, QueuedItemStoppedReason)
	QueuedItemDataAvailable func(*ComfyClient, *QueueItem, *PromptMessageData)
}

// ComfyClient is the top level object that allows for interaction with the ComfyUI backend.
// It is meant to be driven by a single goroutine: one prompt in flight at a time.
type ComfyClient struct {
	baseURL           *url.URL
	clientid          string
	webSocket         *WebSocketConnection
	callbacks         *ComfyClientCallbacks
	queuecount        int
	httpclient        *http.Client
	waitTimeout       time.Duration
	interruptOnCancel bool
	fetchConcurrency  int
	connectRetry      int
	baseDelay         time.Duration
	maxDelay          time.Duration
}

// NewComfyClient creates a client for the ComfyUI server at protocol://addr:port
func NewComfyClient(protocol string, server_address string, server_port int, callbacks *ComfyClientCallbacks) *ComfyClient {
	if protocol == "" {
		protocol = "http"
	}
	base := &url.URL{
		Scheme: protocol,
		Host:   server_address + ":" + strconv.Itoa(server_port),
	}
	return newComfyClient(base, callbacks)
}

// NewComfyClientWithURL creates a client for a server given by its base URL, e.g. "http://127.0.0.1:8188"
func NewComfyClientWithURL(rawURL string, callbacks *ComfyClientCallbacks) (*ComfyClient, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return newComfyClient(base, callbacks), nil
}

func newComfyClient(base *url.URL, callbacks *ComfyClientCallbacks) *ComfyClient {
	return &ComfyClient{
		baseURL:          base,
		clientid:         uuid.New().String(),
		callbacks:        callbacks,
		httpclient:       &http.Client{},
		fetchConcurrency: 1,
		connectRetry:     0,
		baseDelay:        time.Second,
		maxDelay:         30 * time.Second,
	}
}

// ClientID returns the unique client ID for the connection to the ComfyUI backend
func (c *ComfyClient) ClientID() string {
	return c.clientid
}

// BaseURL returns the server address the client talks to
func (c *ComfyClient) BaseURL() string {
	return c.baseURL.String()
}

// return the underlying http client
func (c *ComfyClient) HttpClient() *http.Client {
	return c.httpclient
}

// set the underlying http client
func (c *ComfyClient) SetHttpClient(client *http.Client) {
	c.httpclient = client
}

// SetWaitTimeout bounds how long WaitForPrompt waits for a prompt. Zero waits forever.
func (c *ComfyClient) SetWaitTimeout(timeout time.Duration) {
	c.waitTimeout = timeout
}

// SetInterruptOnCancel makes WaitForPrompt ask the server to interrupt the running
// prompt when the wait times out or is cancelled.
func (c *ComfyClient) SetInterruptOnCancel(interrupt bool) {
	c.interruptOnCancel = interrupt
}

// SetFetchConcurrency sets how many artifacts FetchOutputs downloads at once. Values below 1 mean 1.
func (c *ComfyClient) SetFetchConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	c.fetchConcurrency = n
}

// SetConnectRetry configures the backoff used when dialing the websocket
func (c *ComfyClient) SetConnectRetry(maxRetry int, baseDelay time.Duration, maxDelay time.Duration) {
	c.connectRetry = maxRetry
	c.baseDelay = baseDelay
	c.maxDelay = maxDelay
}

// QueueCount returns the queue size last reported by the server
func (c *ComfyClient) QueueCount() int {
	return c.queuecount
}

func (c *ComfyClient) setQueueCount(n int) {
	c.queuecount = n
	if c.callbacks != nil && c.callbacks.ClientQueueCountChanged != nil {
		c.callbacks.ClientQueueCountChanged(c, n)
	}
}

// IsInitialized returns true if the client's websocket is connected
func (c *ComfyClient) IsInitialized() bool {
	return c.webSocket != nil
}

// Connect opens the websocket that carries execution events for this client id.
// The connection is shared by every prompt the client queues.
func (c *ComfyClient) Connect(ctx context.Context) error {
	if c.webSocket != nil {
		return nil
	}

	ws := &WebSocketConnection{
		WebSocketURL: c.webSocketURL(),
		MaxRetry:     c.connectRetry,
		BaseDelay:    c.baseDelay,
		MaxDelay:     c.maxDelay,
	}
	if err := ws.Connect(ctx); err != nil {
		return err
	}
	c.webSocket = ws
	return nil
}

// Close closes the websocket connection
func (c *ComfyClient) Close() error {
	if c.webSocket == nil {
		return nil
	}
	err := c.webSocket.Close()
	c.webSocket = nil
	return err
}

func (c *ComfyClient) webSocketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/ws"
	u.RawQuery = url.Values{"clientId": {c.clientid}}.Encode()
	return u.String()
}

func (c *ComfyClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
