// Package command implements the local control channel.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/engine"
	"firestige.xyz/scanguard/internal/log"
)

// Methods served over the control socket.
const (
	MethodDaemonStatus    = "daemon.status"
	MethodDaemonShutdown  = "daemon.shutdown"
	MethodDaemonReload    = "daemon.reload"
	MethodEngineStats     = "engine.stats"
	MethodClassifierRules = "classifier.rules"
)

// HookState reports the interception hook.
type HookState interface {
	Mode() string
	Registered() bool
}

// ConfigReloader is the interface for reloading configuration.
type ConfigReloader interface {
	Reload() error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	engine       *engine.Engine
	hook         HookState
	reloader     ConfigReloader
	shutdownFunc func() // called by daemon.shutdown to trigger graceful stop
	startTime    time.Time
	hostname     string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(e *engine.Engine, hook HookState, reloader ConfigReloader) *CommandHandler {
	hostname, _ := os.Hostname()
	return &CommandHandler{
		engine:    e,
		hook:      hook,
		reloader:  reloader,
		startTime: time.Now(),
		hostname:  hostname,
	}
}

// SetShutdownFunc sets the callback invoked by the daemon.shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps scanguard error codes back to the core sentinels, so callers
// can use errors.Is on client errors.
func (e *ErrorInfo) Unwrap() error {
	switch e.Code {
	case ErrCodeConfigInvalid:
		return core.ErrConfigInvalid
	case ErrCodeShuttingDown:
		return core.ErrDaemonNotRunning
	}
	return nil
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error

	// server-defined range
	ErrCodeConfigInvalid = -32001 // reload rejected the config file
	ErrCodeShuttingDown  = -32002 // daemon is stopping
)

// DaemonStatus is the result of daemon.status.
type DaemonStatus struct {
	Hostname      string `json:"hostname"`
	PID           int    `json:"pid"`
	Mode          string `json:"mode"`
	Registered    bool   `json:"registered"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// RulesResult is the result of classifier.rules.
type RulesResult struct {
	Rules []classifier.RuleInfo `json:"rules"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	log.GetLogger().WithField("method", cmd.Method).WithField("id", cmd.ID).Debug("handling command")

	switch cmd.Method {
	case MethodDaemonStatus:
		return h.handleDaemonStatus(cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(cmd)
	case MethodDaemonReload:
		return h.handleDaemonReload(cmd)
	case MethodEngineStats:
		return Response{ID: cmd.ID, Result: h.engine.Stats()}
	case MethodClassifierRules:
		return Response{ID: cmd.ID, Result: RulesResult{Rules: h.engine.Classifier().Table().Describe()}}
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func (h *CommandHandler) handleDaemonStatus(cmd Command) Response {
	uptime := time.Since(h.startTime)
	status := DaemonStatus{
		Hostname:      h.hostname,
		PID:           os.Getpid(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}
	if h.hook != nil {
		status.Mode = h.hook.Mode()
		status.Registered = h.hook.Registered()
	}
	return Response{ID: cmd.ID, Result: status}
}

func (h *CommandHandler) handleDaemonShutdown(cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown not supported")
	}
	// respond first, the callback tears down this server
	go h.shutdownFunc()
	return Response{ID: cmd.ID, Result: map[string]string{"status": "shutting down"}}
}

func (h *CommandHandler) handleDaemonReload(cmd Command) Response {
	if h.reloader == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "reload not supported")
	}
	if err := h.reloader.Reload(); err != nil {
		code := ErrCodeInternalError
		if errors.Is(err, core.ErrConfigInvalid) {
			code = ErrCodeConfigInvalid
		}
		return errorResponse(cmd.ID, code, fmt.Sprintf("reload failed: %v", err))
	}
	return Response{ID: cmd.ID, Result: map[string]string{"status": "reloaded"}}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}
