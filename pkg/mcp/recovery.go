package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// RecoveryAction says how a failed MCP operation should be retried, if at
// all.
type RecoveryAction int

const (
	// NoRetry covers errors that retrying cannot fix: bad requests, auth
	// failures, timeouts.
	NoRetry RecoveryAction = iota
	// RetrySameSession covers transient errors such as rate limits.
	RetrySameSession
	// RetryNewSession covers transport failures where the session itself
	// is suspect and must be recreated first.
	RetryNewSession
)

const (
	// MaxRetries is the number of retry attempts after the initial failure.
	MaxRetries = 1

	// ReinitTimeout bounds session recreation during recovery.
	ReinitTimeout = 10 * time.Second

	// OperationTimeout is the per-call deadline for CallTool and ListTools.
	// Some tools are legitimately slow; the controller's iteration deadline
	// sits above this as the hard ceiling.
	OperationTimeout = 90 * time.Second

	// RetryBackoffMin and RetryBackoffMax bound the jittered pause between
	// retries.
	RetryBackoffMin = 250 * time.Millisecond
	RetryBackoffMax = 750 * time.Millisecond

	// MCPInitTimeout bounds per-server initialization, transport creation
	// plus handshake.
	MCPInitTimeout = 30 * time.Second

	// MCPHealthPingTimeout bounds a single health probe.
	MCPHealthPingTimeout = 5 * time.Second

	// MCPHealthInterval is the health check loop period.
	MCPHealthInterval = 15 * time.Second
)

// ClassifyError maps an MCP operation error to its recovery action.
// Unknown errors are not retried; only failures that clearly point at the
// transport earn a session recreation.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			// A slow server stays slow; retrying just doubles the wait.
			return NoRetry
		}
		return RetryNewSession
	}

	if isConnectionError(err) {
		return RetryNewSession
	}

	// JSON-RPC level failures are client mistakes, not transport trouble.
	if isProtocolError(err) {
		return NoRetry
	}

	return NoRetry
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"no such host",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// isProtocolError spots JSON-RPC error strings surfaced by the MCP SDK.
func isProtocolError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"method not found",
		"invalid params",
		"invalid request",
		"parse error",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
