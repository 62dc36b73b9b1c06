package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// TCPFeed is a literal ingress-line TCP listener: every accepted
// connection is scanned line by line, each line handed to handle
// independently. Multiple connections (e.g. several collector replay
// clients) may be live at once.
type TCPFeed struct {
	addr    string
	logger  *zap.Logger
	started atomic.Bool
}

// NewTCPFeed returns a TCPFeed listening on addr (e.g. ":7911").
func NewTCPFeed(addr string, logger *zap.Logger) *TCPFeed {
	return &TCPFeed{addr: addr, logger: logger}
}

// IsJoined reports whether the listener is up. A TCP feed has no group
// handshake to wait on, so readiness is just "listening".
func (f *TCPFeed) IsJoined() bool { return f.started.Load() }

// Run accepts connections until ctx is cancelled.
func (f *TCPFeed) Run(ctx context.Context, handle func(line string)) error {
	ln, err := net.Listen("tcp", f.addr)
	if err != nil {
		return fmt.Errorf("dispatch: listen on %s: %w", f.addr, err)
	}
	f.started.Store(true)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("dispatch: accept: %w", err)
			}
		}
		go f.handleConn(conn, handle)
	}
}

func (f *TCPFeed) handleConn(conn net.Conn, handle func(string)) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		handle(scanner.Text())
	}
	if err := scanner.Err(); err != nil && f.logger != nil {
		f.logger.Warn("dispatch: tcp feed connection read error", zap.Error(err))
	}
}
