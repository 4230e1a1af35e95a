// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/codec"
)

// ActionFunc handles one request. raw is the full CBOR request,
// including the "action" field. A nil result produces {ok: true}; a
// non-nil result is CBOR-encoded into the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a long-lived request. The handler calls ack once
// it is ready to deliver, which writes {ok: true}, and then writes to
// conn until ctx is done (the client disconnected or the server is
// shutting down). A handler returning an error before ack produces an
// error response instead.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn, ack func() error) error

// Response is the reply envelope for every request.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// readTimeout bounds how long a client may take to send its request.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing a response.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds one CBOR request. Attachments travel inside
// sendMessage requests, hence the generous limit.
const maxRequestSize = 16 << 20

// Server serves the CBOR protocol on a Unix socket. Register handlers
// with Handle and HandleStream before calling Serve.
type Server struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	logger     *slog.Logger

	active sync.WaitGroup
}

// NewServer returns a server that will listen on socketPath.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		logger:     logger,
	}
}

// Handle registers a request-response action. Registering an action
// name twice panics.
func (s *Server) Handle(action string, handler ActionFunc) {
	s.checkUnique(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming action.
func (s *Server) HandleStream(action string, handler StreamFunc) {
	s.checkUnique(action)
	s.streams[action] = handler
}

func (s *Server) checkUnique(action string) {
	_, plain := s.handlers[action]
	_, stream := s.streams[action]
	if plain || stream {
		panic(fmt.Sprintf("host.Server: duplicate handler for action %q", action))
	}
}

// Serve listens on the socket and dispatches requests until ctx is
// cancelled, then waits for in-flight connections. A stale socket file
// is removed first; the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	return s.serve(ctx, nil)
}

// serve is Serve with an optional channel closed once the listener is
// bound.
func (s *Server) serve(ctx context.Context, ready chan<- struct{}) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("host socket listening", "path", s.socketPath)
	if ready != nil {
		close(ready)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if stream, ok := s.streams[header.Action]; ok {
		s.runStream(ctx, header.Action, stream, raw, conn)
		return
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}
	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

// runStream runs a streaming handler until the client hangs up or the
// server stops.
func (s *Server) runStream(ctx context.Context, action string, stream StreamFunc, raw codec.RawMessage, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	acked := false
	ack := func() error {
		if acked {
			return nil
		}
		acked = true
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
		return codec.NewEncoder(conn).Encode(Response{OK: true})
	}

	// The client sends nothing after its request; a read returning
	// means it closed the connection.
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	err := stream(ctx, []byte(raw), conn, ack)
	if !acked {
		if err != nil {
			s.writeError(conn, err.Error())
			return
		}
		ack()
		return
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Info("stream ended", "action", action, "error", err)
	}
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
