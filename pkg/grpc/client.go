package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultDialTimeout = 5 * time.Second

	// defaultCallTimeout bounds one request/response pair so a wedged
	// server cannot hang callers forever.
	defaultCallTimeout = 10 * time.Second
)

// Client is a JSON-over-TCP RPC client. One connection carries every
// call; the mutex serializes request/response pairs on it, so concurrent
// calls queue rather than interleave on the wire.
type Client struct {
	conn        net.Conn
	enc         *json.Encoder
	dec         *json.Decoder
	callTimeout time.Duration

	mu     sync.Mutex
	nextID atomic.Int64
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, defaultDialTimeout)
}

// DialTimeout connects to an RPC server, giving up after the timeout.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		enc:         json.NewEncoder(conn),
		dec:         json.NewDecoder(conn),
		callTimeout: defaultCallTimeout,
	}, nil
}

// Call invokes method with params and decodes the reply into result; a
// nil result discards the reply body. Safe for concurrent use.
//
// After any error the connection may hold a half-read reply, so callers
// should close the client and redial rather than retry on it.
func (c *Client) Call(method string, params any, result any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	resp, err := c.roundTrip(Request{Method: method, ID: id, Params: payload})
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}

	// A reply with the wrong ID means an earlier call abandoned its
	// response mid-wire; nothing read from this connection can be
	// trusted anymore.
	if resp.ID != id {
		return fmt.Errorf("calling %s: reply id %q, want %q", method, resp.ID, id)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %s", method, resp.Error)
	}

	if result == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("re-encoding %s reply: %w", method, err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding %s reply: %w", method, err)
	}
	return nil
}

// roundTrip writes one request and reads one reply under the call
// deadline. Callers must hold c.mu.
func (c *Client) roundTrip(req Request) (Response, error) {
	if c.callTimeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.callTimeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := c.enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading reply: %w", err)
	}
	return resp, nil
}

// Close closes the underlying connection. Calls in flight fail.
func (c *Client) Close() error {
	return c.conn.Close()
}
