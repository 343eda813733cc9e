package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	"vmfleet/internal/app"
)

// maxLineBytes caps one framed request. Profiles are small; anything past
// this indicates a desynchronized or hostile stream.
const maxLineBytes = 1 << 20

// Server drives connection lifecycles: accept, register, read-dispatch-write
// loop, mandatory cleanup on every exit path.
type Server struct {
	dispatcher *Dispatcher
	registry   *app.Registry
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewServer creates a server around the given dispatcher and registry.
func NewServer(dispatcher *Dispatcher, registry *app.Registry, logger *slog.Logger) *Server {
	return &Server{dispatcher: dispatcher, registry: registry, logger: logger}
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and waits for in-flight connections to finish tearing down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn owns one connection from registration to teardown. The deferred
// block is the mandatory cleanup: whatever way the loop exits, the registry
// entry dies with the connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := app.ConnID(conn.RemoteAddr().String())

	// Unblock the read loop when the server shuts down.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	if err := s.registry.Register(connID); err != nil {
		// Duplicate connection id: fatal to this connection only. The
		// entry belongs to the live connection holding it, so teardown
		// of the rejected one must not touch the registry.
		s.logger.Error("register connection", "conn", connID, "error", err)
		return
	}
	defer func() {
		s.registry.Remove(connID)
		s.logger.Info("client disconnected", "conn", connID)
	}()
	s.logger.Info("client connected", "conn", connID)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			// A broken envelope means the stream is desynchronized;
			// answer once and hang up.
			s.writeResponse(conn, connID, errorResponse("malformed request", string(line)))
			return
		}

		resp := s.dispatcher.Dispatch(ctx, connID, req)
		if !s.writeResponse(conn, connID, resp) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// An over-long frame desynchronizes the stream just like a
			// broken envelope: answer once, then hang up.
			s.writeResponse(conn, connID, errorResponse("request too large", nil))
			return
		}
		if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("read loop ended", "conn", connID, "error", err)
		}
	}
}

// writeResponse emits one framed response. Encode appends the newline frame
// boundary. Returns false when the connection is no longer writable.
func (s *Server) writeResponse(conn net.Conn, connID app.ConnID, resp Response) bool {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("write response", "conn", connID, "error", err)
		return false
	}
	return true
}
