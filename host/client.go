// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/codec"
)

const dialTimeout = 5 * time.Second

// maxResponseSize bounds one CBOR response; loadMessages replies can
// carry attachments.
const maxResponseSize = 64 << 20

// ServiceError is a failure reported by the server ({ok: false}).
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("host error on %q: %s", e.Action, e.Message)
}

// Client issues requests to a host socket. Each Call uses its own
// connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with fields and decodes the response data into
// result (if both are non-nil). A server-side failure is returned as
// *ServiceError; transport failures are plain errors. The context
// bounds the whole exchange.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["action"] = action

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("calling %q: writing request: %w", action, err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("calling %q: %w", action, ctx.Err())
		}
		return fmt.Errorf("calling %q: reading response: %w", action, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return conn, nil
}

// EventStream reads events from an open events connection.
type EventStream struct {
	conn    net.Conn
	decoder *codec.Decoder
	stop    func() bool
	once    sync.Once
}

// Events opens an event stream. The stream ends when ctx is done or
// Close is called.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening event stream on %s: %w", c.socketPath, err)
	}
	if err := codec.NewEncoder(conn).Encode(map[string]any{"action": "events"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening event stream: %w", err)
	}

	decoder := codec.NewDecoder(conn)
	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	var response Response
	if err := decoder.Decode(&response); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening event stream: reading acknowledgement: %w", err)
	}
	if !response.OK {
		conn.Close()
		return nil, &ServiceError{Action: "events", Message: response.Error}
	}
	conn.SetReadDeadline(time.Time{})

	stream := &EventStream{conn: conn, decoder: decoder}
	stream.stop = context.AfterFunc(ctx, func() { stream.Close() })
	return stream, nil
}

// Next blocks for the next event. It returns an error once the stream
// is closed or the server goes away.
func (s *EventStream) Next() (WireEvent, error) {
	var event WireEvent
	if err := s.decoder.Decode(&event); err != nil {
		return WireEvent{}, err
	}
	return event, nil
}

// Close ends the stream.
func (s *EventStream) Close() error {
	var err error
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		err = s.conn.Close()
	})
	return err
}
