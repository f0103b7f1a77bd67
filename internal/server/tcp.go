package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// maxPortAttempts bounds how far Listen walks past a busy port.
const maxPortAttempts = 100

// Backoff between failed Accept calls, e.g. while out of file descriptors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}

// Listen binds a TCP listener on host:port. When the port is taken it tries
// the following ports, so the caller should use ln.Addr() for the real one.
func Listen(host string, port int) (net.Listener, error) {
	var lastErr error

	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || port == 0 {
			return nil, err
		}
		lastErr = err
		port++
	}

	return nil, fmt.Errorf("no free port after %d attempts: %w", maxPortAttempts, lastErr)
}

// Serve accepts connections on ln until ctx is cancelled. Each connection is
// handled on its own goroutine. Serve closes ln and every open connection
// before returning, and waits for their handlers to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeConnections()
	})
	defer stop()

	defer s.wg.Wait()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Accept fails once the listener is closed by the cancel hook.
			select {
			case <-ctx.Done():
				s.logger.Info("server stopped")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.closeConnections()
				return err
			}

			delay = nextAcceptDelay(delay)
			s.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				s.logger.Info("server stopped")
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	for conn := range s.conns {
		conn.Close()
	}
}
