package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T, handler ToolHandler) string {
	t.Helper()

	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	server := NewServer(socketPath, handler)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("server.Stop failed: %v", err)
		}
	})

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return socketPath
}

func TestClientServerCommunication(t *testing.T) {
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		if req.Tool != ToolApplyCOA {
			t.Errorf("expected tool %s, got %s", ToolApplyCOA, req.Tool)
		}
		if req.Date != "2025-07-25" {
			t.Errorf("expected date 2025-07-25, got %s", req.Date)
		}
		return &ToolResponse{
			Status:  StatusOK,
			Message: "accepted",
		}, nil
	}

	socketPath := startTestServer(t, handler)
	client := NewClient(socketPath)

	req := &ToolRequest{
		Tool:    ToolApplyCOA,
		Date:    "2025-07-25",
		TimeIn:  "09:00",
		TimeOut: "18:00",
		Reason:  "forgot to in/out",
	}

	resp, err := client.Call(context.Background(), req)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if resp.Type != MessageTypeToolResponse {
		t.Errorf("expected type %s, got %s", MessageTypeToolResponse, resp.Type)
	}
	if resp.Status != StatusOK {
		t.Errorf("expected status %s, got %s", StatusOK, resp.Status)
	}
	if resp.Message != "accepted" {
		t.Errorf("expected message accepted, got %s", resp.Message)
	}
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	var seenID string
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		seenID = req.RequestID
		return &ToolResponse{Status: StatusOK}, nil
	}

	socketPath := startTestServer(t, handler)
	client := NewClient(socketPath)

	req := &ToolRequest{Tool: ToolClockIn}
	resp, err := client.Call(context.Background(), req)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if req.RequestID == "" {
		t.Fatal("client should assign a request id when none is set")
	}
	if seenID != req.RequestID {
		t.Errorf("server saw request id %q, client sent %q", seenID, req.RequestID)
	}
	if resp.RequestID != req.RequestID {
		t.Errorf("response carries request id %q, want %q", resp.RequestID, req.RequestID)
	}
}

func TestUnknownToolRejected(t *testing.T) {
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		t.Error("handler should not be called for an unknown tool")
		return &ToolResponse{Status: StatusOK}, nil
	}

	socketPath := startTestServer(t, handler)
	client := NewClient(socketPath)

	resp, err := client.Call(context.Background(), &ToolRequest{Tool: Tool("get_payslip")})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if resp.Status != StatusError {
		t.Errorf("expected status error, got %s", resp.Status)
	}
	if resp.Message == "" {
		t.Error("expected error message to be set")
	}
}

func TestServerHandlerError(t *testing.T) {
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		return &ToolResponse{
			Status:  StatusError,
			Message: "daemon not initialized",
		}, nil
	}

	socketPath := startTestServer(t, handler)
	client := NewClient(socketPath)

	resp, err := client.Call(context.Background(), &ToolRequest{Tool: ToolClockOut})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if resp.Status != StatusError {
		t.Errorf("expected status error, got %s", resp.Status)
	}
	if resp.Message == "" {
		t.Error("expected error message to be set")
	}
}

func TestClientConnectionFailure(t *testing.T) {
	client := NewClient("/nonexistent/path/test.sock")

	_, err := client.Call(context.Background(), &ToolRequest{Tool: ToolClockIn})
	if err == nil {
		t.Error("expected error when connecting to non-existent socket")
	}
}

func TestServerSocketPermissions(t *testing.T) {
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		return &ToolResponse{Status: StatusOK}, nil
	}

	socketPath := startTestServer(t, handler)

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("failed to stat socket: %v", err)
	}

	mode := info.Mode()
	expectedMode := os.FileMode(0660) | os.ModeSocket

	if mode != expectedMode {
		t.Errorf("expected socket mode %v, got %v", expectedMode, mode)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	// Handler that takes a bit of time
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		time.Sleep(200 * time.Millisecond)
		return &ToolResponse{Status: StatusOK}, nil
	}

	server := NewServer(socketPath, handler)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	go func() {
		client := NewClient(socketPath)
		_, _ = client.Call(context.Background(), &ToolRequest{Tool: ToolClockIn})
	}()

	time.Sleep(50 * time.Millisecond)

	// Stop should wait for the in-flight request to complete
	if err := server.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file should be removed after stop")
	}
}

func TestMultipleConcurrentRequests(t *testing.T) {
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		return &ToolResponse{
			Status:  StatusOK,
			Message: "date " + req.Date,
		}, nil
	}

	socketPath := startTestServer(t, handler)

	numRequests := 10
	results := make(chan *ToolResponse, numRequests)
	errors := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		go func(n int) {
			client := NewClient(socketPath)
			req := &ToolRequest{
				Tool: ToolApplyCOA,
				Date: "2025-07-25",
			}

			resp, err := client.Call(context.Background(), req)
			if err != nil {
				errors <- err
				return
			}
			results <- resp
		}(i)
	}

	for i := 0; i < numRequests; i++ {
		select {
		case err := <-errors:
			t.Errorf("request failed: %v", err)
		case resp := <-results:
			if resp.Status != StatusOK {
				t.Errorf("expected status ok, got %s", resp.Status)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for responses")
		}
	}
}

func TestClientTimeout(t *testing.T) {
	// Handler that sleeps longer than the client timeout
	handler := func(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
		time.Sleep(2 * time.Second)
		return &ToolResponse{Status: StatusOK}, nil
	}

	socketPath := startTestServer(t, handler)

	client := NewClient(socketPath)
	client.SetTimeout(500 * time.Millisecond)

	_, err := client.Call(context.Background(), &ToolRequest{Tool: ToolClockIn})
	if err == nil {
		t.Error("expected timeout error")
	}
}
