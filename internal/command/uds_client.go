package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/engine"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", core.ErrDaemonNotRunning, c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var jsonrpcResp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *ErrorInfo      `json:"error,omitempty"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	respID := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respID != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respID)
	}

	resp := &Response{ID: respID, Error: jsonrpcResp.Error}
	if len(jsonrpcResp.Result) > 0 {
		resp.Result = jsonrpcResp.Result
	}
	return resp, nil
}

// callInto calls method and decodes its result into out. An RPC error is
// returned as *ErrorInfo.
func (c *UDSClient) callInto(ctx context.Context, method string, out interface{}) error {
	resp, err := c.Call(ctx, method, nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	raw, ok := resp.Result.(json.RawMessage)
	if !ok {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// DaemonStatus calls daemon.status.
func (c *UDSClient) DaemonStatus(ctx context.Context) (*DaemonStatus, error) {
	var s DaemonStatus
	if err := c.callInto(ctx, MethodDaemonStatus, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EngineStats calls engine.stats.
func (c *UDSClient) EngineStats(ctx context.Context) (*engine.Stats, error) {
	var s engine.Stats
	if err := c.callInto(ctx, MethodEngineStats, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ClassifierRules calls classifier.rules.
func (c *UDSClient) ClassifierRules(ctx context.Context) (*RulesResult, error) {
	var r RulesResult
	if err := c.callInto(ctx, MethodClassifierRules, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Shutdown asks the daemon to stop.
func (c *UDSClient) Shutdown(ctx context.Context) error {
	var out map[string]string
	return c.callInto(ctx, MethodDaemonShutdown, &out)
}

// Reload asks the daemon to reload its configuration.
func (c *UDSClient) Reload(ctx context.Context) error {
	var out map[string]string
	return c.callInto(ctx, MethodDaemonReload, &out)
}

// Ping checks that the daemon answers.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.DaemonStatus(ctx)
	return err
}
