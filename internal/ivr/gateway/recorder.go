package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Command records a single gateway call made through a Recorder.
type Command struct {
	Op               Op
	Call             CallHandle
	Text             string // Prompt or playback text
	Target           string // Dial target
	OperationContext string
}

// Recorder is an in-memory Gateway that records every command for test
// assertions. Dial returns sequential handles ("call-1", "call-2", ...).
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	errs     map[Op]error
	dials    int
}

var _ Gateway = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{errs: make(map[Op]error)}
}

// FailOn causes every subsequent command of the given kind to return err.
// Pass nil to clear.
func (r *Recorder) FailOn(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

func (r *Recorder) Dial(_ context.Context, req DialRequest) (CallHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Op: OpDial, Target: req.Target, OperationContext: req.OperationContext})
	if err := r.errs[OpDial]; err != nil {
		return "", &CommandError{Op: OpDial, Cause: err}
	}
	r.dials++
	return CallHandle(fmt.Sprintf("call-%d", r.dials)), nil
}

func (r *Recorder) PlayPrompt(_ context.Context, call CallHandle, req PlayRequest) error {
	return r.record(Command{Op: OpPlay, Call: call, Text: req.Text, OperationContext: req.OperationContext})
}

func (r *Recorder) StartRecognition(_ context.Context, call CallHandle, req RecognizeRequest) error {
	return r.record(Command{Op: OpRecognize, Call: call, Text: req.Prompt, OperationContext: req.OperationContext})
}

func (r *Recorder) Hangup(_ context.Context, call CallHandle) error {
	return r.record(Command{Op: OpHangup, Call: call})
}

func (r *Recorder) record(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if err := r.errs[cmd.Op]; err != nil {
		return &CommandError{Op: cmd.Op, Call: cmd.Call, Cause: err}
	}
	return nil
}

// Commands returns a copy of all recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmds := make([]Command, len(r.commands))
	copy(cmds, r.commands)
	return cmds
}

// Count returns how many commands of the given kind were recorded.
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset clears all recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}
