// Package core defines sentinel errors.
package core

import "errors"

var (
	// Header extraction errors. Both are recovered by the classifier as accept.
	ErrTruncated = errors.New("scanguard: packet truncated")
	ErrNotIPv4   = errors.New("scanguard: not an ipv4 packet")

	// Interception errors
	ErrHookRegistered      = errors.New("scanguard: hook already registered")
	ErrHookNotRegistered   = errors.New("scanguard: hook not registered")
	ErrUnsupportedPlatform = errors.New("scanguard: interception not supported on this platform")

	// Configuration errors
	ErrConfigInvalid = errors.New("scanguard: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("scanguard: daemon not running")
	ErrDaemonRunning    = errors.New("scanguard: daemon already running")
)
