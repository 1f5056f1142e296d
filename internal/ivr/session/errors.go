package session

import "errors"

// ErrSessionClosed is returned when delivering to a session whose loop has stopped.
var ErrSessionClosed = errors.New("session closed")
