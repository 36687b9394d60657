package qix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// globalHandle addresses the engine's global scope, the target of OpenDoc.
const globalHandle = -1

// Error is a JSON-RPC error returned by the engine.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("qix: engine error %d: %s", e.Code, e.Message)
}

// ErrSessionClosed is returned by calls issued after the session's websocket
// has been closed or has failed.
var ErrSessionClosed = errors.New("qix: session closed")

// DialOptions configures [Dial].
type DialOptions struct {
	// APIKey is sent as a bearer token on the websocket handshake.
	APIKey string

	// HTTPClient overrides the client used for the handshake. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Dial connects to the engine websocket at wsURL and returns a live
// [Session].
func Dial(ctx context.Context, wsURL string, opts DialOptions) (Session, error) {
	headers := http.Header{}
	if opts.APIKey != "" {
		headers.Set("Authorization", "Bearer "+opts.APIKey)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("qix: dial %s: %w", wsURL, err)
	}
	// Hypercube pages for wide tables can be large.
	conn.SetReadLimit(32 << 20)

	c := &client{
		conn:    conn,
		pending: make(map[uint64]chan rpcResponse),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// rpcRequest is one JSON-RPC 2.0 frame sent to the engine.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Handle  int    `json:"handle"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcResponse is one JSON-RPC 2.0 frame received from the engine. Frames
// without an ID (change notifications) are discarded.
type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Err    *Error          `json:"error"`
}

// client implements [Session] over a single websocket connection.
type client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcResponse
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Session = (*client)(nil)

// call issues one JSON-RPC request against handle and decodes the result
// into out. It blocks until the engine responds, ctx is done, or the session
// dies.
func (c *client) call(ctx context.Context, handle int, method string, params, out any) error {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Handle:  handle,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("qix: marshal %s request: %w", method, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("qix: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrSessionClosed
		}
		return err
	case resp := <-ch:
		if resp.Err != nil {
			return resp.Err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("qix: decode %s result: %w", method, err)
		}
		return nil
	}
}

// readLoop owns the websocket read side, dispatching responses to pending
// calls by ID until the connection fails or the session is closed.
func (c *client) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrSessionClosed, err))
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.ID == 0 {
			// Change notification or malformed frame; ignore.
			continue
		}

		c.mu.Lock()
		ch := c.pending[resp.ID]
		c.mu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
}

// fail marks the session dead and wakes every blocked caller.
func (c *client) fail(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

// Close implements [Session].
func (c *client) Close() error {
	c.fail(ErrSessionClosed)
	return c.conn.Close(websocket.StatusNormalClosure, "done")
}

// handleResult is the common engine reply for calls that return a new handle.
type handleResult struct {
	Return struct {
		Handle int    `json:"qHandle"`
		ID     string `json:"qGenericId"`
		Type   string `json:"qType"`
	} `json:"qReturn"`
}

// OpenDoc implements [Session].
func (c *client) OpenDoc(ctx context.Context, appID string) (Doc, error) {
	var res handleResult
	params := struct {
		DocName string `json:"qDocName"`
	}{DocName: appID}
	if err := c.call(ctx, globalHandle, "OpenDoc", params, &res); err != nil {
		return nil, fmt.Errorf("qix: open doc %q: %w", appID, err)
	}
	return &doc{c: c, handle: res.Return.Handle, appID: appID}, nil
}

// doc implements [Doc] over an engine document handle.
type doc struct {
	c      *client
	handle int
	appID  string
}

var _ Doc = (*doc)(nil)

// Object implements [Doc].
func (d *doc) Object(ctx context.Context, objectID string) (Object, error) {
	var res handleResult
	params := struct {
		ID string `json:"qId"`
	}{ID: objectID}
	if err := d.c.call(ctx, d.handle, "GetObject", params, &res); err != nil {
		return nil, fmt.Errorf("qix: get object %q: %w", objectID, err)
	}
	if res.Return.Handle == 0 {
		return nil, fmt.Errorf("qix: object %q not found in app %q", objectID, d.appID)
	}
	return &object{c: d.c, handle: res.Return.Handle, id: objectID}, nil
}

// SheetList implements [Doc].
func (d *doc) SheetList(ctx context.Context) ([]SheetEntry, error) {
	var res struct {
		List []SheetEntry `json:"qList"`
	}
	params := struct {
		Options struct {
			Types []string `json:"qTypes"`
		} `json:"qOptions"`
	}{}
	params.Options.Types = []string{"sheet"}
	if err := d.c.call(ctx, d.handle, "GetObjects", params, &res); err != nil {
		return nil, fmt.Errorf("qix: list sheets: %w", err)
	}
	return res.List, nil
}

// object implements [Object] over an engine object handle.
type object struct {
	c      *client
	handle int
	id     string
}

var _ Object = (*object)(nil)

// Layout implements [Object].
func (o *object) Layout(ctx context.Context) (*Layout, error) {
	var res struct {
		Layout json.RawMessage `json:"qLayout"`
	}
	if err := o.c.call(ctx, o.handle, "GetLayout", nil, &res); err != nil {
		return nil, fmt.Errorf("qix: layout of %q: %w", o.id, err)
	}
	return ParseLayout(res.Layout)
}

// HyperCubeData implements [Object].
func (o *object) HyperCubeData(ctx context.Context, page Page) ([][]Cell, error) {
	var res struct {
		DataPages []struct {
			Matrix [][]Cell `json:"qMatrix"`
		} `json:"qDataPages"`
	}
	params := struct {
		Path  string `json:"qPath"`
		Pages []Page `json:"qPages"`
	}{Path: "/qHyperCubeDef", Pages: []Page{page}}
	if err := o.c.call(ctx, o.handle, "GetHyperCubeData", params, &res); err != nil {
		return nil, fmt.Errorf("qix: hypercube data of %q: %w", o.id, err)
	}
	if len(res.DataPages) == 0 {
		return nil, nil
	}
	return res.DataPages[0].Matrix, nil
}

// ParseLayout decodes a raw engine layout, preserving the original bytes in
// Layout.Raw. Missing optional sections decode to nil, never to an error.
func ParseLayout(raw json.RawMessage) (*Layout, error) {
	l := &Layout{}
	if err := json.Unmarshal(raw, l); err != nil {
		return nil, fmt.Errorf("qix: decode layout: %w", err)
	}
	l.Raw = bytes.Clone(raw)
	return l, nil
}

// nanLiterals are the sentinel encodings the engine uses for missing numbers.
var nanLiterals = [][]byte{
	[]byte(`"NaN"`),
	[]byte(`"-Infinity"`),
	[]byte(`"Infinity"`),
}

// UnmarshalJSON decodes a cell, treating the engine's NaN sentinels as a
// missing numeric value.
func (c *Cell) UnmarshalJSON(data []byte) error {
	type alias struct {
		Text  string          `json:"qText"`
		Num   json.RawMessage `json:"qNum"`
		State string          `json:"qState"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Text = a.Text
	c.State = a.State
	c.Num = nil
	if len(a.Num) == 0 || bytes.Equal(a.Num, []byte("null")) {
		return nil
	}
	for _, lit := range nanLiterals {
		if bytes.Equal(a.Num, lit) {
			return nil
		}
	}
	var n float64
	if err := json.Unmarshal(a.Num, &n); err != nil {
		return fmt.Errorf("qix: decode cell number %s: %w", a.Num, err)
	}
	c.Num = &n
	return nil
}
