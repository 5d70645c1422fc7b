package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// RPCRequest is a single line-delimited JSON request on the wire.
type RPCRequest struct {
	Method string          `json:"method"`
	ID     int64           `json:"id"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCError carries a structured failure back to the client.
type RPCError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RPCResponse is the reply to one RPCRequest.
type RPCResponse struct {
	ID     int64     `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *RPCError `json:"error,omitempty"`
}

// connectParams is the payload of the "connect" method.
type connectParams struct {
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

// disconnectParams is the payload of the "disconnect" method.
type disconnectParams struct {
	Session string `json:"session"`
}

// sqlExecuteParams is the payload of the "sql_execute" method.
type sqlExecuteParams struct {
	Session        string `json:"session"`
	Query          string `json:"query"`
	AllowMultifrag bool   `json:"allow_multifrag"`
	ColumnFilter   string `json:"column_filter"`
	FirstN         int64  `json:"first_n"`
	AtMostN        int64  `json:"at_most_n"`
}

// sqlExecuteResult is the wire form of a QueryResult.
type sqlExecuteResult struct {
	ColumnNames  []string `json:"column_names"`
	Rows         [][]any  `json:"rows"`
	RowsAffected int64    `json:"rows_affected"`
}

// TCPServer exposes a Handler over a line-delimited JSON protocol:
// one request per line, one response per line, connections served
// concurrently.
type TCPServer struct {
	handler  *Handler
	listener net.Listener
	addr     string
	logger   *log.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewTCPServer starts listening on addr and returns the server. Call Start
// to begin accepting connections.
func NewTCPServer(handler *Handler, addr string, logger *log.Logger) (*TCPServer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("tcp addr is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return &TCPServer{
		handler:  handler,
		listener: ln,
		addr:     ln.Addr().String(),
		logger:   logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *TCPServer) Addr() string {
	return s.addr
}

// Start accepts connections until ctx is cancelled or Stop is called.
func (s *TCPServer) Start(ctx context.Context) error {
	s.logger.Info("tcp server listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener and waits for in-flight connections.
func (s *TCPServer) Stop() error {
	err := s.listener.Close()
	s.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", err)
	}
	return nil
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req RPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			_ = encoder.Encode(RPCResponse{Error: &RPCError{
				Kind:    string(KindParse),
				Message: fmt.Sprintf("invalid request: %v", err),
			}})
			continue
		}

		resp := s.dispatch(&req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Warn("write response failed", "err", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug("connection read error", "err", err)
	}
}

func (s *TCPServer) dispatch(req *RPCRequest) RPCResponse {
	resp := RPCResponse{ID: req.ID}

	switch req.Method {
	case "connect":
		var p connectParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = paramError(err)
			return resp
		}
		id, err := s.handler.Connect(p.User, p.Password, p.DBName)
		if err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		resp.Result = map[string]any{"session": string(id)}

	case "disconnect":
		var p disconnectParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = paramError(err)
			return resp
		}
		if err := s.handler.Disconnect(SessionID(p.Session)); err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		resp.Result = map[string]any{"disconnected": true}

	case "sql_execute":
		var p sqlExecuteParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = paramError(err)
			return resp
		}
		var result QueryResult
		err := s.handler.ExecuteQuery(&result, SessionID(p.Session), p.Query,
			p.AllowMultifrag, p.ColumnFilter, p.FirstN, p.AtMostN)
		if err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		resp.Result = sqlExecuteResult{
			ColumnNames:  result.ColumnNames,
			Rows:         result.Rows,
			RowsAffected: result.RowsAffected,
		}

	case "ping":
		resp.Result = map[string]any{"pong": true}

	default:
		resp.Error = &RPCError{
			Kind:    string(KindParse),
			Message: fmt.Sprintf("unknown method: %s", req.Method),
		}
	}

	return resp
}

func paramError(err error) *RPCError {
	return &RPCError{Kind: string(KindParse), Message: fmt.Sprintf("invalid params: %v", err)}
}

// toRPCError preserves QueryError kinds on the wire; other errors map to
// runtime failures with their message intact.
func toRPCError(err error) *RPCError {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return &RPCError{Kind: string(qerr.Kind), Message: qerr.Message}
	}
	return &RPCError{Kind: string(KindRuntime), Message: err.Error()}
}
