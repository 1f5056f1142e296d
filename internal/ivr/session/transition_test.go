package session

import (
	"testing"

	"github.com/sebas/ivrcaller/internal/ivr/gateway"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name         string
		from         Snapshot
		event        Event
		wantState    State
		wantAttempts int
		wantOps      []gateway.Op
		wantText     string
	}{
		{"start dials", Snapshot{StateInitial, 0}, StartCall{PhoneNumber: "+15551234567"}, StateRinging, 0, []gateway.Op{gateway.OpDial}, ""},
		{"connected asks main question", Snapshot{StateRinging, 0}, CallConnected{}, StateAskMainQuestion, 1, []gateway.Op{gateway.OpRecognize}, PromptMainQuestion},
		{"main 1 asks animal", Snapshot{StateAskMainQuestion, 2}, RecognizeCompleted{Tones: []string{"1"}}, StateAskFavoriteAnimal, 1, []gateway.Op{gateway.OpRecognize}, PromptFavoriteAnimal},
		{"main 2 asks beverage", Snapshot{StateAskMainQuestion, 1}, RecognizeCompleted{Tones: []string{"2"}}, StateAskFavoriteBeverage, 1, []gateway.Op{gateway.OpRecognize}, PromptFavoriteBeverage},
		{"main 3 reprompts", Snapshot{StateAskMainQuestion, 1}, RecognizeCompleted{Tones: []string{"3"}}, StateAskMainQuestion, 2, []gateway.Op{gateway.OpRecognize}, PromptMainQuestion},
		{"main failure reprompts", Snapshot{StateAskMainQuestion, 2}, RecognizeFailed{}, StateAskMainQuestion, 3, []gateway.Op{gateway.OpRecognize}, PromptMainQuestion},
		{"main fourth attempt gives up", Snapshot{StateAskMainQuestion, 3}, RecognizeFailed{}, StateCouldNotParse, 4, []gateway.Op{gateway.OpPlay}, MessageCouldNotParse},
		{"main disconnect", Snapshot{StateAskMainQuestion, 1}, CallDisconnected{}, StateDisconnected, 1, nil, ""},
		{"animal 3 thanks", Snapshot{StateAskFavoriteAnimal, 1}, RecognizeCompleted{Tones: []string{"3"}}, StateThankYou, 1, []gateway.Op{gateway.OpPlay}, MessageThankYou},
		{"animal 4 reprompts", Snapshot{StateAskFavoriteAnimal, 1}, RecognizeCompleted{Tones: []string{"4"}}, StateAskFavoriteAnimal, 2, []gateway.Op{gateway.OpRecognize}, PromptFavoriteAnimal},
		{"beverage 1 thanks", Snapshot{StateAskFavoriteBeverage, 3}, RecognizeCompleted{Tones: []string{"1"}}, StateThankYou, 3, []gateway.Op{gateway.OpPlay}, MessageThankYou},
		{"beverage star reprompts", Snapshot{StateAskFavoriteBeverage, 1}, RecognizeCompleted{Tones: []string{"*"}}, StateAskFavoriteBeverage, 2, []gateway.Op{gateway.OpRecognize}, PromptFavoriteBeverage},
		{"beverage disconnect", Snapshot{StateAskFavoriteBeverage, 2}, CallDisconnected{}, StateDisconnected, 2, nil, ""},
		{"animal disconnect", Snapshot{StateAskFavoriteAnimal, 2}, CallDisconnected{}, StateDisconnected, 2, nil, ""},
		{"thank you played hangs up", Snapshot{StateThankYou, 1}, PlayFinished{}, StateTerminal, 1, []gateway.Op{gateway.OpHangup}, ""},
		{"goodbye played hangs up", Snapshot{StateCouldNotParse, 4}, PlayFinished{}, StateTerminal, 4, []gateway.Op{gateway.OpHangup}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Transition(tt.from, tt.event)
			if !out.Handled {
				t.Fatal("expected event to be handled")
			}
			if out.State != tt.wantState {
				t.Errorf("State = %s, want %s", out.State, tt.wantState)
			}
			if out.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", out.Attempts, tt.wantAttempts)
			}
			if len(out.Commands) != len(tt.wantOps) {
				t.Fatalf("got %d commands, want %d", len(out.Commands), len(tt.wantOps))
			}
			for i, op := range tt.wantOps {
				if out.Commands[i].Op != op {
					t.Errorf("Commands[%d].Op = %s, want %s", i, out.Commands[i].Op, op)
				}
			}
			if tt.wantText != "" && out.Commands[0].Text != tt.wantText {
				t.Errorf("Commands[0].Text = %q, want %q", out.Commands[0].Text, tt.wantText)
			}
			if !tt.from.State.CanTransitionTo(out.State) {
				t.Errorf("%s -> %s not in validTransitions", tt.from.State, out.State)
			}
		})
	}
}

func TestTransitionInvalidTones(t *testing.T) {
	invalid := [][]string{
		nil,
		{},
		{"1", "2"},
		{"12"},
		{"one"},
		{""},
	}

	for _, state := range []State{StateAskMainQuestion, StateAskFavoriteAnimal, StateAskFavoriteBeverage} {
		for _, tones := range invalid {
			out := Transition(Snapshot{State: state, Attempts: 1}, RecognizeCompleted{Tones: tones})
			if out.State != state || out.Attempts != 2 {
				t.Errorf("%s with tones %q: got %s/%d, want %s/2", state, tones, out.State, out.Attempts, state)
			}
			if len(out.Commands) != 1 || out.Commands[0].Op != gateway.OpRecognize {
				t.Errorf("%s with tones %q: expected a single reprompt, got %v", state, tones, out.Commands)
			}
		}
	}
}

func TestTransitionIgnoredEvents(t *testing.T) {
	tests := []struct {
		state State
		event Event
	}{
		{StateInitial, CallConnected{}},
		{StateInitial, RecognizeFailed{}},
		{StateRinging, StartCall{}},
		{StateRinging, RecognizeCompleted{Tones: []string{"1"}}},
		{StateAskMainQuestion, PlayFinished{}},
		{StateAskMainQuestion, StartCall{}},
		{StateThankYou, RecognizeCompleted{Tones: []string{"1"}}},
		{StateThankYou, RecognizeFailed{}},
		{StateCouldNotParse, RecognizeFailed{}},
		{StateCouldNotParse, CallDisconnected{}},
	}

	for _, tt := range tests {
		out := Transition(Snapshot{State: tt.state, Attempts: 2}, tt.event)
		if out.Handled || out.State != tt.state || out.Attempts != 2 || len(out.Commands) != 0 {
			t.Errorf("%s + %s: got %+v, want ignored", tt.state, tt.event.Name(), out)
		}
	}
}

func TestTransitionTerminalAbsorbs(t *testing.T) {
	all := []Event{
		StartCall{}, CallConnected{}, CallDisconnected{},
		RecognizeCompleted{Tones: []string{"1"}}, RecognizeFailed{}, PlayFinished{},
	}

	for _, state := range []State{StateTerminal, StateDisconnected, StateFailed} {
		if !state.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false", state)
		}
		for _, ev := range all {
			out := Transition(Snapshot{State: state, Attempts: 1}, ev)
			if out.Handled || out.State != state || len(out.Commands) != 0 {
				t.Errorf("%s + %s changed the session: %+v", state, ev.Name(), out)
			}
		}
	}
}

func TestTransitionRepromptCountsToGoodbye(t *testing.T) {
	s := Snapshot{State: StateAskMainQuestion, Attempts: 1}
	var plays int

	for i := 0; i < 4; i++ {
		out := Transition(s, RecognizeFailed{})
		for _, c := range out.Commands {
			if c.Op == gateway.OpPlay {
				plays++
			}
		}
		s = Snapshot{State: out.State, Attempts: out.Attempts}
	}

	if s.State != StateCouldNotParse {
		t.Errorf("State = %s, want %s", s.State, StateCouldNotParse)
	}
	if s.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", s.Attempts)
	}
	if plays != 1 {
		t.Errorf("goodbye played %d times, want 1", plays)
	}
}

func TestStateString(t *testing.T) {
	if got := StateCouldNotParse.String(); got != "CouldNotParseAfterThreeAttempts" {
		t.Errorf("String() = %q", got)
	}
	if got := State(99).String(); got != "Unknown(99)" {
		t.Errorf("String() = %q", got)
	}
}
