package session

import (
	"time"

	"github.com/sebas/ivrcaller/internal/ivr/gateway"
)

// CallConfiguration holds the per-call settings supplied when a call is
// started. It is never mutated afterwards.
type CallConfiguration struct {
	CallerNumber       string        `json:"caller_number"`
	CallbackURL        string        `json:"callback_url"`
	SpeechEndpoint     string        `json:"speech_endpoint"`
	Voice              string        `json:"voice"`
	RecognitionTimeout time.Duration `json:"recognition_timeout"`
}

const (
	DefaultVoice              = "en-GB-SoniaNeural"
	DefaultRecognitionTimeout = 10 * time.Second
)

func (c CallConfiguration) withDefaults() CallConfiguration {
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.RecognitionTimeout <= 0 {
		c.RecognitionTimeout = DefaultRecognitionTimeout
	}
	return c
}

// Event is an input to a session. The set of implementations is closed.
type Event interface {
	// Name returns the event name used in logs and lifecycle events.
	Name() string
	isEvent()
}

// StartCall asks the session to place the outbound call.
type StartCall struct {
	PhoneNumber string
	Config      CallConfiguration
}

// CallConnected reports that the callee answered.
type CallConnected struct {
	// CallHandle is the provider's connection id, if the callback carried one.
	CallHandle gateway.CallHandle
}

// CallDisconnected reports that the call ended at the provider.
type CallDisconnected struct{}

// RecognizeCompleted carries the DTMF tones collected, normalized to "0"-"9", "*", "#".
type RecognizeCompleted struct {
	Tones []string
}

// RecognizeFailed reports a recognition timeout or error.
type RecognizeFailed struct{}

// PlayFinished reports that a played message completed (or failed to play).
type PlayFinished struct{}

func (StartCall) Name() string          { return "StartCall" }
func (CallConnected) Name() string      { return "CallConnected" }
func (CallDisconnected) Name() string   { return "CallDisconnected" }
func (RecognizeCompleted) Name() string { return "RecognizeCompleted" }
func (RecognizeFailed) Name() string    { return "RecognizeFailed" }
func (PlayFinished) Name() string       { return "PlayFinished" }

func (StartCall) isEvent()          {}
func (CallConnected) isEvent()      {}
func (CallDisconnected) isEvent()   {}
func (RecognizeCompleted) isEvent() {}
func (RecognizeFailed) isEvent()    {}
func (PlayFinished) isEvent()       {}
