// Package gateway defines the telephony side effects an IVR session needs
// from the external call-automation provider, and adapters that perform them.
package gateway

import (
	"context"
	"time"
)

// CallHandle identifies a connected call at the provider.
type CallHandle string

// DialRequest contains the parameters for placing an outbound call.
type DialRequest struct {
	Target           string // Number being called (E.164)
	Caller           string // Number presented as caller ID
	CallbackURL      string // Where the provider delivers callbacks
	SpeechEndpoint   string // Speech/recognition service endpoint
	OperationContext string // Correlation token echoed on callbacks
}

// PlayRequest contains text-to-speech playback parameters.
type PlayRequest struct {
	Text             string
	Voice            string
	OperationContext string
}

// RecognizeRequest starts DTMF collection, playing Prompt first.
type RecognizeRequest struct {
	Prompt           string
	Voice            string
	Timeout          time.Duration // Initial silence timeout
	MaxTones         int
	OperationContext string
}

// Gateway performs telephony commands. PlayPrompt and StartRecognition only
// issue the command; their outcome arrives later as a provider callback.
// Dial and Hangup succeed or fail immediately.
type Gateway interface {
	// Dial places an outbound call and returns the provider's handle for it.
	Dial(ctx context.Context, req DialRequest) (CallHandle, error)

	// PlayPrompt plays text to every participant of the call.
	PlayPrompt(ctx context.Context, call CallHandle, req PlayRequest) error

	// StartRecognition plays a prompt and collects DTMF tones.
	StartRecognition(ctx context.Context, call CallHandle, req RecognizeRequest) error

	// Hangup ends the call for everyone.
	Hangup(ctx context.Context, call CallHandle) error
}
