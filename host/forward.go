// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/netutil"
)

// Forwarder accepts TCP connections and splices each onto a fresh
// connection to the host socket. The socket protocol is unchanged, so
// a TCP peer speaks exactly what a local client would.
type Forwarder struct {
	// ListenAddr is the TCP address to listen on, e.g. "127.0.0.1:8642".
	ListenAddr string

	// SocketPath is the host socket connections are forwarded to.
	SocketPath string

	// Logger defaults to slog.Default(). Per-connection events are
	// logged at Debug.
	Logger *slog.Logger

	listener    net.Listener
	cancel      context.CancelFunc
	done        chan struct{}
	connections sync.WaitGroup
	accepted    atomic.Int64
}

func (f *Forwarder) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Start checks the socket is reachable, binds the listener and begins
// forwarding in the background. It runs until Stop or ctx ends.
func (f *Forwarder) Start(ctx context.Context) error {
	if f.ListenAddr == "" {
		return errors.New("host: forwarder ListenAddr is required")
	}
	if f.SocketPath == "" {
		return errors.New("host: forwarder SocketPath is required")
	}

	probe, err := net.DialTimeout("unix", f.SocketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("host: socket %s not reachable: %w", f.SocketPath, err)
	}
	probe.Close()

	listener, err := net.Listen("tcp", f.ListenAddr)
	if err != nil {
		return fmt.Errorf("host: listening on %s: %w", f.ListenAddr, err)
	}
	f.listener = listener

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	go func() {
		defer close(f.done)
		f.acceptLoop(ctx)
	}()

	f.logger().Info("tcp forwarder started", "listen_addr", listener.Addr().String(), "socket_path", f.SocketPath)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (f *Forwarder) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Stop closes the listener and waits for open connections to finish.
func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}

func (f *Forwarder) acceptLoop(ctx context.Context) {
	defer f.connections.Wait()
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			f.logger().Error("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		id := f.accepted.Add(1)
		f.connections.Add(1)
		go func() {
			defer f.connections.Done()
			f.forward(ctx, conn, id)
		}()
	}
}

func (f *Forwarder) forward(ctx context.Context, tcpConn net.Conn, id int64) {
	logger := f.logger().With("connection_id", id)
	logger.Debug("connection accepted", "remote_addr", tcpConn.RemoteAddr().String())

	socketConn, err := net.DialTimeout("unix", f.SocketPath, dialTimeout)
	if err != nil {
		tcpConn.Close()
		logger.Error("connecting to host socket", "error", err)
		return
	}

	// Long-lived event streams must not outlive Stop.
	stop := context.AfterFunc(ctx, func() {
		tcpConn.Close()
		socketConn.Close()
	})
	defer stop()

	in, out, err := netutil.Splice(tcpConn, socketConn)
	if err != nil {
		logger.Debug("forwarding ended with error", "error", err)
	}
	logger.Debug("connection closed", "bytes_in", in, "bytes_out", out)
}
