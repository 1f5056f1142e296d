// Package correlation encodes call identifiers into the opaque operation
// context the call-automation provider echoes back on every callback.
package correlation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix tags tokens minted by this service.
const Prefix = "ivr"

const separator = "|"

// ErrMalformedToken is returned when a callback carries no usable token.
var ErrMalformedToken = errors.New("malformed correlation token")

// Encode builds the operation context for a call: "ivr|<call-id>".
func Encode(callID uuid.UUID) string {
	return Prefix + separator + callID.String()
}

// Decode extracts the call identifier from an operation context.
// Both the prefixed form produced by Encode and a bare UUID are accepted.
func Decode(token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, fmt.Errorf("%w: empty", ErrMalformedToken)
	}

	raw := token
	if prefix, rest, found := strings.Cut(token, separator); found {
		if prefix != Prefix {
			return uuid.Nil, fmt.Errorf("%w: unknown prefix %q", ErrMalformedToken, prefix)
		}
		raw = rest
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: nil call id", ErrMalformedToken)
	}
	return id, nil
}
