package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// ToolHandler is the function type for handling tool requests
type ToolHandler func(ctx context.Context, req *ToolRequest) (*ToolResponse, error)

// Server is the IPC server that listens on a Unix socket for tool requests
type Server struct {
	socketPath string
	listener   net.Listener
	handler    ToolHandler
	wg         sync.WaitGroup
	stopChan   chan struct{}
	mu         sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(socketPath string, handler ToolHandler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopChan:   make(chan struct{}),
	}
}

// Start starts the IPC server
func (s *Server) Start(ctx context.Context) error {
	// Ensure the directory exists.
	// Use 0755 so any local process can traverse the directory.
	// Access control is enforced at the socket level.
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove old socket if it exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Set socket permissions: 0660 (owner + group read/write).
	// The daemon submits corrections under the configured credentials, so
	// world access is denied to keep untrusted local users from filing
	// attendance records on the account holder's behalf.
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("IPC server started", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				// Server is stopping, this is expected
				return
			default:
				slog.Error("failed to accept connection", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	var req ToolRequest
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&req); err != nil {
		slog.Error("failed to decode request", "error", err)
		s.sendErrorResponse(conn, "", "invalid request format")
		return
	}

	if req.Type != MessageTypeToolRequest {
		slog.Error("invalid request type", "type", req.Type)
		s.sendErrorResponse(conn, req.RequestID, "invalid request type")
		return
	}

	if !KnownTool(req.Tool) {
		slog.Error("unknown tool requested", "tool", req.Tool)
		s.sendErrorResponse(conn, req.RequestID, fmt.Sprintf("unknown tool: %s", req.Tool))
		return
	}

	slog.Info("tool request received",
		"request_id", req.RequestID,
		"tool", req.Tool,
		"date", req.Date,
	)

	resp, err := s.handler(ctx, &req)
	if err != nil {
		slog.Error("handler error", "request_id", req.RequestID, "error", err)
		s.sendErrorResponse(conn, req.RequestID, err.Error())
		return
	}

	resp.Type = MessageTypeToolResponse
	resp.RequestID = req.RequestID
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		slog.Error("failed to send response", "error", err)
		return
	}

	slog.Debug("tool response sent", "request_id", req.RequestID, "status", resp.Status)
}

// sendErrorResponse sends an error response to the client
func (s *Server) sendErrorResponse(conn net.Conn, requestID, errMsg string) {
	resp := &ToolResponse{
		Type:      MessageTypeToolResponse,
		RequestID: requestID,
		Status:    StatusError,
		Message:   errMsg,
	}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		slog.Error("failed to send error response", "error", err)
	}
}

// Stop stops the IPC server gracefully
func (s *Server) Stop() error {
	slog.Info("stopping IPC server")

	close(s.stopChan)

	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			slog.Warn("failed to close listener", "error", err)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove socket file", "error", err)
	}

	slog.Info("IPC server stopped")
	return nil
}
