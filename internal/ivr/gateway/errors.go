package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrNoCallHandle indicates a command was issued before the call was placed.
	ErrNoCallHandle = errors.New("no call handle")

	// ErrNotReady indicates the gateway connection is closed.
	ErrNotReady = errors.New("gateway not ready")

	// ErrEmptyResponse indicates the provider accepted a dial without returning a handle.
	ErrEmptyResponse = errors.New("empty gateway response")
)

// Op names a gateway command.
type Op string

const (
	OpDial      Op = "dial"
	OpPlay      Op = "play"
	OpRecognize Op = "recognize"
	OpHangup    Op = "hangup"
)

// CommandError describes a failed gateway command.
type CommandError struct {
	// Op is the command that failed.
	Op Op

	// Call is the call handle the command targeted (empty for dial).
	Call CallHandle

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *CommandError) Error() string {
	if e.Call != "" {
		return fmt.Sprintf("gateway %s (call %s): %v", e.Op, e.Call, e.Cause)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Cause
}
