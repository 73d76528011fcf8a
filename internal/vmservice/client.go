package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/reqtracker"
)

// Client is a JSON-RPC 2.0 client over a Dart VM Service websocket
// connection. Requests and responses are correlated the same way
// fdemon correlates Flutter daemon commands: a monotonic id handed to
// a reqtracker.Tracker.
type Client struct {
	conn    *websocket.Conn
	tracker *reqtracker.Tracker

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect dials wsURL (e.g. "ws://127.0.0.1:54123/abcdef=/ws") and
// starts the background read loop that demultiplexes responses.
func Connect(ctx context.Context, wsURL string) (*Client, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vmservice: dialing %s: %w", wsURL, err)
	}
	c := &Client{
		conn:    conn,
		tracker: reqtracker.New(),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.tracker.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			fdebug.Logf("vmservice: read loop exiting: %v", err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		fdebug.Logf("vmservice: discarding unparseable frame: %v", err)
		return
	}
	if probe.Method != "" && len(probe.ID) == 0 {
		// A streaming event fdemon doesn't currently subscribe to.
		return
	}

	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		fdebug.Logf("vmservice: discarding unparseable response: %v", err)
		return
	}
	var id uint64
	if err := json.Unmarshal(resp.ID, &id); err != nil {
		fdebug.Logf("vmservice: response id not numeric: %v", err)
		return
	}

	var errPayload json.RawMessage
	if resp.Error != nil {
		errPayload, _ = json.Marshal(resp.Error)
	}
	c.tracker.HandleResponse(id, resp.Result, errPayload)
}

// Call issues a JSON-RPC request and blocks until a matching response
// arrives, the context is cancelled, or the connection closes.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.tracker.NextID()
	respCh := c.tracker.Register(id)

	req := wireRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("vmservice: encoding request: %w", err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vmservice: writing request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Closed {
			return nil, fmt.Errorf("vmservice: connection closed before response to %s", method)
		}
		if len(resp.Error) > 0 {
			var rpcErr RPCError
			if err := json.Unmarshal(resp.Error, &rpcErr); err != nil {
				return nil, fmt.Errorf("vmservice: %s returned unparseable error: %s", method, resp.Error)
			}
			return nil, &rpcErr
		}
		return resp.Result, nil
	}
}

// Close shuts down the websocket connection. Safe to call more than
// once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
