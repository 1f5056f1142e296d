package session

import "github.com/sebas/ivrcaller/internal/ivr/gateway"

// Command is a gateway side effect produced by a transition.
type Command struct {
	Op gateway.Op
	// Text is the prompt for recognize, the message for play.
	Text string
}

func dial() Command                   { return Command{Op: gateway.OpDial} }
func recognize(prompt string) Command { return Command{Op: gateway.OpRecognize, Text: prompt} }
func play(text string) Command        { return Command{Op: gateway.OpPlay, Text: text} }
func hangup() Command                 { return Command{Op: gateway.OpHangup} }
