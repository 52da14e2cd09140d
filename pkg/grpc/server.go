// Package grpc is a small JSON-over-TCP RPC layer for service-to-service
// calls inside the platform. It keeps the Service.Method dispatch shape of
// gRPC without pulling in google.golang.org/grpc for the handful of admin
// calls that need it.
//
// The wire protocol is a stream of JSON objects over one persistent TCP
// connection: each Request carries a method name, caller-chosen ID, and raw
// params; each Response echoes the ID with either data or an error string.
//
// Server side:
//
//	s := grpc.NewServer()
//	s.Register("RegistryService.Stats", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var in proto.RegistryStatsRequest
//	    if err := json.Unmarshal(req, &in); err != nil {
//	        return nil, err
//	    }
//	    return collectStats(in.ShardID), nil
//	})
//	s.Serve(":7090")
//
// Client side:
//
//	c, _ := grpc.Dial("localhost:7090")
//	var resp proto.RegistryStatsResponse
//	c.Call("RegistryService.Stats", &proto.RegistryStatsRequest{ShardID: proto.AllShards}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes one RPC request. The returned value is marshalled
// into the Response data field.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is one call on the wire. The ID is chosen by the caller and
// echoed in the matching Response.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response answers exactly one Request. Data and Error are mutually
// exclusive.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server dispatches RPC requests to registered handlers. Each accepted
// connection is served by its own goroutine; requests on one connection are
// handled in order.
type Server struct {
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server with no registered methods.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:   slog.Default().With("component", "rpc-server"),
		baseCtx:  ctx,
		cancel:   cancel,
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Register adds a handler under a "Service.Method" name. Registering a
// name twice replaces the earlier handler.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve listens on addr and accepts connections until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.baseCtx.Err() != nil {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Addr returns the bound listen address, or "" before Serve has bound one.
// Callers that serve on port 0 read the real port from here.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MethodCount reports how many methods are registered.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to drain. Handlers in flight see their context
// cancelled.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			// Connection closed by the peer or by Stop.
			return
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	data, err := handler(s.baseCtx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Data = data
	return resp
}
