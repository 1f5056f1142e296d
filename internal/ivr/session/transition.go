package session

// Prompts and messages spoken to the callee.
const (
	PromptMainQuestion     = "What do you want to tell us about? Press 1 for favorite animal, press 2 for favorite beverage."
	PromptFavoriteAnimal   = "What is your favorite animal? Press 1 for Cat, press 2 for Dog, press 3 for Monkey."
	PromptFavoriteBeverage = "What is your favorite beverage? Press 1 for Coffee, press 2 for Tea, press 3 for Red Bull."
	MessageThankYou        = "Thank you for your response. Goodbye."
	MessageCouldNotParse   = "Couldn't understand what you're trying to say. Goodbye."
)

// MaxAttempts is how many recognitions a question gets before the caller
// hears the goodbye message.
const MaxAttempts = 3

// Snapshot is the part of a session that decides the next transition.
type Snapshot struct {
	State    State
	Attempts int
}

// Outcome is the result of applying one event to a Snapshot.
type Outcome struct {
	State    State
	Attempts int
	Commands []Command
	// Handled is false when the event does not apply to the state.
	Handled bool
}

// prompts maps each ask state to the prompt it (re)issues.
var prompts = map[State]string{
	StateAskMainQuestion:     PromptMainQuestion,
	StateAskFavoriteAnimal:   PromptFavoriteAnimal,
	StateAskFavoriteBeverage: PromptFavoriteBeverage,
}

// Transition applies ev to s. It performs no I/O: the returned commands
// are executed by the caller in order.
func Transition(s Snapshot, ev Event) Outcome {
	ignored := Outcome{State: s.State, Attempts: s.Attempts}

	switch s.State {
	case StateInitial:
		if _, ok := ev.(StartCall); ok {
			return Outcome{State: StateRinging, Attempts: 0, Commands: []Command{dial()}, Handled: true}
		}

	case StateRinging:
		if _, ok := ev.(CallConnected); ok {
			return ask(StateAskMainQuestion)
		}

	case StateAskMainQuestion, StateAskFavoriteAnimal, StateAskFavoriteBeverage:
		switch e := ev.(type) {
		case CallDisconnected:
			return Outcome{State: StateDisconnected, Attempts: s.Attempts, Handled: true}
		case RecognizeFailed:
			return reprompt(s)
		case RecognizeCompleted:
			tone, ok := singleTone(e.Tones)
			if !ok {
				return reprompt(s)
			}
			return answer(s, tone)
		}

	case StateThankYou, StateCouldNotParse:
		if _, ok := ev.(PlayFinished); ok {
			return Outcome{State: StateTerminal, Attempts: s.Attempts, Commands: []Command{hangup()}, Handled: true}
		}
	}

	return ignored
}

// ask moves to an ask state with a fresh attempt counter.
func ask(next State) Outcome {
	return Outcome{State: next, Attempts: 1, Commands: []Command{recognize(prompts[next])}, Handled: true}
}

func answer(s Snapshot, tone string) Outcome {
	if s.State == StateAskMainQuestion {
		switch tone {
		case "1":
			return ask(StateAskFavoriteAnimal)
		case "2":
			return ask(StateAskFavoriteBeverage)
		}
		return reprompt(s)
	}

	switch tone {
	case "1", "2", "3":
		return Outcome{State: StateThankYou, Attempts: s.Attempts, Commands: []Command{play(MessageThankYou)}, Handled: true}
	}
	return reprompt(s)
}

func reprompt(s Snapshot) Outcome {
	attempts := s.Attempts + 1
	if attempts > MaxAttempts {
		return Outcome{State: StateCouldNotParse, Attempts: attempts, Commands: []Command{play(MessageCouldNotParse)}, Handled: true}
	}
	return Outcome{State: s.State, Attempts: attempts, Commands: []Command{recognize(prompts[s.State])}, Handled: true}
}

// singleTone accepts exactly one single-character tone.
func singleTone(tones []string) (string, bool) {
	if len(tones) != 1 || len(tones[0]) != 1 {
		return "", false
	}
	return tones[0], true
}
