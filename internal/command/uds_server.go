package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"

	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/metrics"
)

const (
	// idleTimeout closes control connections that send nothing.
	idleTimeout = 30 * time.Second
	// maxRequestSize bounds one request line. The methods take no params.
	maxRequestSize = 64 * 1024
)

var knownMethods = map[string]bool{
	MethodDaemonStatus:    true,
	MethodDaemonShutdown:  true,
	MethodDaemonReload:    true,
	MethodEngineStats:     true,
	MethodClassifierRules: true,
}

// UDSServer serves the control methods as JSON-RPC 2.0 over a Unix domain
// socket, one request per line.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler
	listener   net.Listener

	stopping *abool.AtomicBool
	nextConn atomic.Uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		stopping:   abool.New(),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket and serves until ctx is done, then stops.
func (s *UDSServer) Start(ctx context.Context) error {
	// stale socket from a previous run
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	// owner only: the socket can stop enforcement
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.GetLogger().WithField("socket", s.socketPath).Info("control socket listening")

	go s.acceptLoop(ctx, listener)

	<-ctx.Done()
	return s.Stop()
}

func (s *UDSServer) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.IsSet() {
				return
			}
			log.GetLogger().WithError(err).Error("control socket accept failed")
			continue
		}

		s.mu.Lock()
		if s.stopping.IsSet() {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(ctx, conn, s.nextConn.Add(1))
	}
}

func (s *UDSServer) serveConn(ctx context.Context, conn net.Conn, id uint64) {
	logger := log.GetLogger().WithField("conn", id)
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !scanner.Scan() {
			break
		}
		resp := s.dispatch(ctx, scanner.Bytes(), logger)
		if err := encoder.Encode(resp); err != nil {
			logger.WithError(err).Warn("failed to write control response")
			return
		}
	}

	if err := scanner.Err(); err != nil && !s.stopping.IsSet() {
		logger.WithError(err).Debug("control connection closed")
	}
}

// dispatch decodes one request line and runs it against the handler.
func (s *UDSServer) dispatch(ctx context.Context, line []byte, logger log.Logger) JSONRPCResponse {
	start := time.Now()

	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return s.reply(logger, "", nil, start, nil, &ErrorInfo{
			Code:    ErrCodeParseError,
			Message: fmt.Sprintf("parse error: %v", err),
		})
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return s.reply(logger, req.Method, req.ID, start, nil, &ErrorInfo{
			Code:    ErrCodeInvalidRequest,
			Message: "invalid request: jsonrpc must be \"2.0\" and method set",
		})
	}
	if s.stopping.IsSet() {
		return s.reply(logger, req.Method, req.ID, start, nil, &ErrorInfo{
			Code:    ErrCodeShuttingDown,
			Message: "daemon is shutting down",
		})
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	return s.reply(logger, req.Method, req.ID, start, resp.Result, resp.Error)
}

func (s *UDSServer) reply(logger log.Logger, method string, id interface{}, start time.Time, result interface{}, rpcErr *ErrorInfo) JSONRPCResponse {
	label := method
	if !knownMethods[label] {
		label = "invalid"
	}
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	metrics.ControlRequestsTotal.WithLabelValues(label, strconv.Itoa(code)).Inc()

	l := logger.WithFields(map[string]interface{}{
		"method":   method,
		"duration": time.Since(start),
	})
	if rpcErr != nil {
		l.WithField("code", code).Warn(rpcErr.Message)
	} else {
		l.Debug("control request served")
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
}

// Stop closes the listener and every open connection, waits for handlers to
// return and removes the socket file. Later calls are no-ops.
func (s *UDSServer) Stop() error {
	if !s.stopping.SetToIf(false, true) {
		return nil
	}

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket %s: %w", s.socketPath, err)
	}
	log.GetLogger().WithField("socket", s.socketPath).Info("control socket closed")
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
