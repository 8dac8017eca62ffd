// Package agent implements the control loop that drives one task to
// completion by repeatedly building a prompt, calling the model, parsing
// and dispatching the resulting actions, and folding the outcome back into
// memory.
//
// Grounded on loop/agent.go's turn shape (build request -> call model ->
// process tool results -> feed back -> repeat) and loop/statemachine.go's
// transition-history bookkeeping, repurposed from sketch's
// {initializing, running, paused, disconnected} agent lifecycle to this
// loop's {build, codecorrector} prompt-mode switching plus per-task
// {running, paused, done} status.
package agent

import (
	"context"
	"errors"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/llm"
	"lemonai.dev/codeact/memory"
	"lemonai.dev/codeact/runtime"
)

// PromptMode selects which role header the prompt builder renders.
type PromptMode string

const (
	ModeBuild         PromptMode = "build"
	ModeCodeCorrector PromptMode = "codecorrector"
)

// Task carries all mutable state the control loop threads across
// iterations of one (conversation, task) run.
type Task struct {
	Goal        string // the root task goal, always included in the prompt
	Requirement string // the current requirement/instruction for this turn

	RetryCount         int
	TotalRetryAttempts int
	PromptMode         PromptMode
	LastFinishStatus   string // "" | "SUCCESS" | "FAILED"
	Reflection         string // context.reflection, shown as "Error Feedback"

	// LastTerminalFailure records the run_id of the most recent failed
	// terminal_run. Its feedback message carries the [terminal_run_id:<id>]
	// marker that memory.Store.PurgeTerminalRun matches; the control loop
	// itself does not purge it.
	LastTerminalFailure string

	// transientReadErrors tracks read_file paths that failed with
	// NOT_FOUND/INACCESSIBLE, for revalidation after a later successful
	// write_code to the same path.
	transientReadErrors map[string]string
}

func newTaskState() *Task {
	return &Task{PromptMode: ModeBuild, transientReadErrors: map[string]string{}}
}

// NewTask creates a Task ready to run its first iteration.
func NewTask(goal string) *Task {
	t := newTaskState()
	t.Goal = goal
	t.Requirement = goal
	return t
}

// Result is what a task run returns to its caller.
type Result struct {
	Status  string // "SUCCESS" | "FAILED" | "PAUSED"
	Message string
}

// Reflector is the external reflection/evaluation collaborator — an
// out-of-process service this core only calls through this narrow
// interface, never implements.
type Reflector interface {
	Reflect(ctx context.Context, requirement string, result *actionkit.Result) (status, comments string, err error)
}

// PromptBuilder builds the next turn's prompt from task and memory state.
// Implemented by prompt.Builder; declared here to avoid a prompt -> agent
// import cycle.
type PromptBuilder interface {
	Build(ctx context.Context, task *Task, mem *memory.Store) (string, error)
}

// ChatClient is the subset of llm/stream.Client the loop needs. Declared as
// an interface so tests can substitute a fake model.
type ChatClient interface {
	Chat(ctx context.Context, system string, history []llm.Message, prompt string, opts llm.Options, onToken func(string)) (*llm.Result, error)
}

// PauseError is the sentinel an infrastructure pause propagates: the
// control loop must return a pause Result immediately, without retrying.
type PauseError struct{ Reason string }

func (e *PauseError) Error() string { return "pause required: " + e.Reason }

// IsPauseRequired reports whether err (or one it wraps) is a PauseError.
func IsPauseRequired(err error) bool {
	var pe *PauseError
	return errors.As(err, &pe)
}

// Deps bundles the collaborators one Loop invocation needs.
type Deps struct {
	Memory     *memory.Store
	Dispatcher *runtime.Dispatcher
	Chat       ChatClient
	Prompt     PromptBuilder
	Reflector  Reflector

	MaxRetryTimes   int // retries allowed per requirement before the task fails, default 10
	MaxTotalRetries int // optional cap across the whole task; 0 disables
}

func (d Deps) maxRetryTimes() int {
	if d.MaxRetryTimes > 0 {
		return d.MaxRetryTimes
	}
	return 10
}

// Run drives task to completion, calling one iteration of the control
// loop at a time until it returns a terminal or paused Result.
func Run(ctx context.Context, task *Task, d Deps) (*Result, error) {
	for {
		outcome, err := runIteration(ctx, task, d)
		if err != nil {
			if IsPauseRequired(err) {
				return &Result{Status: "PAUSED", Message: err.Error()}, nil
			}
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// localControlAction reports whether a is returned directly to Run's
// caller rather than dispatched.
func localControlAction(t actionkit.ToolName) bool {
	return t == actionkit.RevisePlan
}
