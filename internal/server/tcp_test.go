package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/YarShev/omniscidb/internal/server"
	"github.com/YarShev/omniscidb/internal/testutil"
)

// startTestServer runs a TCPServer on an ephemeral port and returns a
// connected client.
func startTestServer(t *testing.T) (*server.TCPServer, net.Conn) {
	t.Helper()

	h := testutil.NewTestHandler(t)
	srv, err := server.NewTCPServer(h, "127.0.0.1:0", testutil.TestLogger(t))
	if err != nil {
		t.Fatalf("NewTCPServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = srv.Stop()
	})
	go func() {
		_ = srv.Start(ctx)
	}()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", srv.Addr())
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", srv.Addr(), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return srv, conn
}

// roundTrip sends one request line and decodes the response line.
func roundTrip(t *testing.T, conn net.Conn, scanner *bufio.Scanner, req server.RPCRequest) server.RPCResponse {
	t.Helper()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write request: %v", err)
	}

	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	var resp server.RPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return data
}

func TestTCPServer_Ping(t *testing.T) {
	_, conn := startTestServer(t)
	scanner := bufio.NewScanner(conn)

	resp := roundTrip(t, conn, scanner, server.RPCRequest{Method: "ping", ID: 1})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	testutil.RequireEqual(t, int64(1), resp.ID, "response id")

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result not a map: %T", resp.Result)
	}
	if pong, _ := result["pong"].(bool); !pong {
		t.Error("expected pong: true")
	}
}

func TestTCPServer_ConnectExecuteDisconnect(t *testing.T) {
	_, conn := startTestServer(t)
	scanner := bufio.NewScanner(conn)

	resp := roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "connect",
		ID:     1,
		Params: params(t, map[string]any{
			"user":     "admin",
			"password": "HyperInteractive",
			"db_name":  "",
		}),
	})
	if resp.Error != nil {
		t.Fatalf("connect error: %+v", resp.Error)
	}
	session, _ := resp.Result.(map[string]any)["session"].(string)
	if session == "" {
		t.Fatal("connect returned empty session")
	}

	resp = roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "sql_execute",
		ID:     2,
		Params: params(t, map[string]any{
			"session":         session,
			"query":           "SELECT 1;",
			"allow_multifrag": true,
			"first_n":         -1,
			"at_most_n":       -1,
		}),
	})
	if resp.Error != nil {
		t.Fatalf("sql_execute error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result not a map: %T", resp.Result)
	}
	rows, _ := result["rows"].([]any)
	testutil.RequireEqual(t, 1, len(rows), "row count")

	resp = roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "disconnect",
		ID:     3,
		Params: params(t, map[string]any{"session": session}),
	})
	if resp.Error != nil {
		t.Fatalf("disconnect error: %+v", resp.Error)
	}
}

func TestTCPServer_QueryErrorOnWire(t *testing.T) {
	_, conn := startTestServer(t)
	scanner := bufio.NewScanner(conn)

	resp := roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "connect",
		ID:     1,
		Params: params(t, map[string]any{"user": "admin", "password": "HyperInteractive"}),
	})
	if resp.Error != nil {
		t.Fatalf("connect error: %+v", resp.Error)
	}
	session, _ := resp.Result.(map[string]any)["session"].(string)

	resp = roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "sql_execute",
		ID:     2,
		Params: params(t, map[string]any{
			"session":   session,
			"query":     "SELECT * FROM nonexistent_table;",
			"first_n":   -1,
			"at_most_n": -1,
		}),
	})
	if resp.Error == nil {
		t.Fatal("expected wire error")
	}
	testutil.RequireEqual(t, string(server.KindSemantic), resp.Error.Kind, "error kind")
	testutil.RequireEqual(t, "Table 'nonexistent_table' does not exist.", resp.Error.Message, "error message")
}

func TestTCPServer_BadCredentialsOnWire(t *testing.T) {
	_, conn := startTestServer(t)
	scanner := bufio.NewScanner(conn)

	resp := roundTrip(t, conn, scanner, server.RPCRequest{
		Method: "connect",
		ID:     1,
		Params: params(t, map[string]any{"user": "admin", "password": "wrong"}),
	})
	if resp.Error == nil {
		t.Fatal("expected auth error")
	}
	testutil.RequireEqual(t, "authentication failure", resp.Error.Message, "error message")
}

func TestTCPServer_UnknownMethod(t *testing.T) {
	_, conn := startTestServer(t)
	scanner := bufio.NewScanner(conn)

	resp := roundTrip(t, conn, scanner, server.RPCRequest{Method: "nope", ID: 9})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	testutil.RequireEqual(t, int64(9), resp.ID, "response id")
}
