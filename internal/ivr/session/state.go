package session

import "fmt"

// State represents where a call is in the questionnaire
type State int

const (
	// StateInitial is the state of a session before the call is placed
	StateInitial State = iota
	// StateRinging is after Dial succeeded, awaiting CallConnected
	StateRinging
	// StateAskMainQuestion is while the caller picks a topic
	StateAskMainQuestion
	// StateAskFavoriteAnimal is while the caller picks an animal
	StateAskFavoriteAnimal
	// StateAskFavoriteBeverage is while the caller picks a beverage
	StateAskFavoriteBeverage
	// StateThankYou is while the thank-you message plays
	StateThankYou
	// StateCouldNotParse is while the goodbye message plays after too many failed attempts
	StateCouldNotParse
	// StateTerminal is after the call was hung up normally
	StateTerminal
	// StateDisconnected is after the caller hung up mid-questionnaire
	StateDisconnected
	// StateFailed is after a gateway command failed
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateRinging:
		return "Ringing"
	case StateAskMainQuestion:
		return "AskMainQuestion"
	case StateAskFavoriteAnimal:
		return "AskFavoriteAnimal"
	case StateAskFavoriteBeverage:
		return "AskFavoriteBeverage"
	case StateThankYou:
		return "ThankYou"
	case StateCouldNotParse:
		return "CouldNotParseAfterThreeAttempts"
	case StateTerminal:
		return "Terminal"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// MarshalText encodes the state by name for JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// validTransitions defines which state transitions are allowed.
// Failed is reachable from every non-terminal state because any
// gateway command may fail.
var validTransitions = map[State][]State{
	StateInitial:             {StateRinging, StateFailed},
	StateRinging:             {StateAskMainQuestion, StateFailed},
	StateAskMainQuestion:     {StateAskMainQuestion, StateAskFavoriteAnimal, StateAskFavoriteBeverage, StateCouldNotParse, StateDisconnected, StateFailed},
	StateAskFavoriteAnimal:   {StateAskFavoriteAnimal, StateThankYou, StateCouldNotParse, StateDisconnected, StateFailed},
	StateAskFavoriteBeverage: {StateAskFavoriteBeverage, StateThankYou, StateCouldNotParse, StateDisconnected, StateFailed},
	StateThankYou:            {StateTerminal, StateFailed},
	StateCouldNotParse:       {StateTerminal, StateFailed},
	StateTerminal:            {},
	StateDisconnected:        {},
	StateFailed:              {},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s State) CanTransitionTo(next State) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true once no event can change the state anymore
func (s State) IsTerminal() bool {
	return s == StateTerminal || s == StateDisconnected || s == StateFailed
}

// IsAsking returns true for the states that wait on DTMF input
func (s State) IsAsking() bool {
	return s == StateAskMainQuestion || s == StateAskFavoriteAnimal || s == StateAskFavoriteBeverage
}
